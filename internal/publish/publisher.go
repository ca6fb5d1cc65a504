package publish

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/fixd/internal/agents"
	"github.com/fyrsmithlabs/fixd/internal/config"
)

// Client-side throttle for the GitHub API, independent of server-side
// rate-limit handling in the retry loop.
const (
	defaultRateLimit = 2 // requests per second
	defaultBurst     = 4
)

// pullRequests is the slice of the GitHub API the publisher needs.
// *github.PullRequestsService satisfies it.
type pullRequests interface {
	Create(ctx context.Context, owner, repo string, pull *github.NewPullRequest) (*github.PullRequest, *github.Response, error)
	RequestReviewers(ctx context.Context, owner, repo string, number int, reviewers github.ReviewersRequest) (*github.PullRequest, *github.Response, error)
}

// Publisher opens pull requests for applied fixes.
type Publisher struct {
	prs     pullRequests
	owner   string
	repo    string
	baseRef string
	retry   *RetryConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewPublisher creates a GitHub-backed publisher.
func NewPublisher(client *github.Client, cfg config.GitHubConfig, logger *zap.Logger) (*Publisher, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github owner and repo must be configured")
	}
	baseRef := cfg.BaseRef
	if baseRef == "" {
		baseRef = "main"
	}
	return &Publisher{
		prs:     client.PullRequests,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		baseRef: baseRef,
		retry:   DefaultRetryConfig(),
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		logger:  logger,
	}, nil
}

// Publish opens a pull request for the pushed branch and returns its URL.
// Reviewer assignment is best-effort: a PR that exists but could not get
// reviewers is still a successful publication.
func (p *Publisher) Publish(ctx context.Context, input agents.PullRequestInput) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	var pr *github.PullRequest
	_, err := retryOperation(ctx, p.retry, p.logger, func() (*github.Response, error) {
		var resp *github.Response
		var createErr error
		pr, resp, createErr = p.prs.Create(ctx, p.owner, p.repo, &github.NewPullRequest{
			Title: github.String(input.Title),
			Head:  github.String(input.Branch),
			Base:  github.String(p.baseRef),
			Body:  github.String(input.Description),
		})
		return resp, createErr
	})
	if err != nil {
		return "", fmt.Errorf("create pull request for %s: %w", input.Branch, err)
	}

	p.logger.Info("pull request created",
		zap.String("url", pr.GetHTMLURL()),
		zap.Int("number", pr.GetNumber()),
		zap.Int("files", len(input.ChangedFiles)),
	)

	if len(input.Reviewers) > 0 {
		if err := p.requestReviewers(ctx, pr.GetNumber(), input.Reviewers); err != nil {
			p.logger.Warn("failed to request reviewers",
				zap.Int("number", pr.GetNumber()),
				zap.Error(err),
			)
		}
	}

	return pr.GetHTMLURL(), nil
}

func (p *Publisher) requestReviewers(ctx context.Context, number int, reviewers []string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	_, err := retryOperation(ctx, p.retry, p.logger, func() (*github.Response, error) {
		_, resp, reqErr := p.prs.RequestReviewers(ctx, p.owner, p.repo, number, github.ReviewersRequest{
			Reviewers: reviewers,
		})
		return resp, reqErr
	})
	return err
}
