package publish

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/fixd/internal/agents"
)

// fakePRs scripts the GitHub pull-request API surface.
type fakePRs struct {
	createCalls    int
	createFailures int
	createErr      error
	createStatus   int

	reviewerCalls int
	reviewerErr   error

	lastPull      *github.NewPullRequest
	lastReviewers github.ReviewersRequest
}

func (f *fakePRs) Create(_ context.Context, _, _ string, pull *github.NewPullRequest) (*github.PullRequest, *github.Response, error) {
	f.createCalls++
	f.lastPull = pull
	if f.createCalls <= f.createFailures {
		resp := &github.Response{Response: &http.Response{StatusCode: f.createStatus}}
		return nil, resp, f.createErr
	}
	return &github.PullRequest{
		Number:  github.Int(7),
		HTMLURL: github.String("https://github.com/acme/widgets/pull/7"),
	}, &github.Response{Response: &http.Response{StatusCode: http.StatusCreated}}, nil
}

func (f *fakePRs) RequestReviewers(_ context.Context, _, _ string, _ int, reviewers github.ReviewersRequest) (*github.PullRequest, *github.Response, error) {
	f.reviewerCalls++
	f.lastReviewers = reviewers
	if f.reviewerErr != nil {
		resp := &github.Response{Response: &http.Response{StatusCode: http.StatusUnprocessableEntity}}
		return nil, resp, f.reviewerErr
	}
	return &github.PullRequest{}, &github.Response{Response: &http.Response{StatusCode: http.StatusOK}}, nil
}

func newTestPublisher(prs pullRequests) *Publisher {
	return &Publisher{
		prs:     prs,
		owner:   "acme",
		repo:    "widgets",
		baseRef: "main",
		retry: &RetryConfig{
			MaxRetries:        2,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        5 * time.Millisecond,
			BackoffMultiplier: 2,
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  zap.NewNop(),
	}
}

func TestPublishOpensPullRequest(t *testing.T) {
	prs := &fakePRs{}
	p := newTestPublisher(prs)

	url, err := p.Publish(context.Background(), agents.PullRequestInput{
		Title:        "Automated fixes (2 files)",
		Description:  "details",
		Branch:       "fixd/exec-1",
		ChangedFiles: []string{"a.go", "b.go"},
		Reviewers:    []string{"octocat"},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/acme/widgets/pull/7", url)
	assert.Equal(t, "fixd/exec-1", prs.lastPull.GetHead())
	assert.Equal(t, "main", prs.lastPull.GetBase())
	assert.Equal(t, 1, prs.reviewerCalls)
	assert.Equal(t, []string{"octocat"}, prs.lastReviewers.Reviewers)
}

func TestPublishRetriesServerErrors(t *testing.T) {
	prs := &fakePRs{
		createFailures: 2,
		createErr:      errors.New("upstream error"),
		createStatus:   http.StatusBadGateway,
	}
	p := newTestPublisher(prs)

	url, err := p.Publish(context.Background(), agents.PullRequestInput{Branch: "fixd/e"})
	require.NoError(t, err)
	assert.Equal(t, 3, prs.createCalls)
	assert.NotEmpty(t, url)
}

func TestPublishDoesNotRetryClientErrors(t *testing.T) {
	prs := &fakePRs{
		createFailures: 10,
		createErr:      errors.New("validation failed"),
		createStatus:   http.StatusUnprocessableEntity,
	}
	p := newTestPublisher(prs)

	_, err := p.Publish(context.Background(), agents.PullRequestInput{Branch: "fixd/e"})
	require.Error(t, err)
	assert.Equal(t, 1, prs.createCalls, "422 must not be retried")
}

func TestPublishReviewerFailureIsNonFatal(t *testing.T) {
	prs := &fakePRs{reviewerErr: errors.New("unknown reviewer")}
	p := newTestPublisher(prs)

	url, err := p.Publish(context.Background(), agents.PullRequestInput{
		Branch:    "fixd/e",
		Reviewers: []string{"ghost"},
	})
	require.NoError(t, err, "a PR without reviewers is still published")
	assert.NotEmpty(t, url)
}

func TestIsRetryableError(t *testing.T) {
	makeResp := func(code int, rateLimit int) *github.Response {
		return &github.Response{
			Response: &http.Response{StatusCode: code},
			Rate:     github.Rate{Limit: rateLimit},
		}
	}

	tests := []struct {
		name string
		err  error
		resp *github.Response
		want bool
	}{
		{"nil error", nil, makeResp(200, 0), false},
		{"rate limited", errors.New("x"), makeResp(429, 0), true},
		{"server error", errors.New("x"), makeResp(500, 0), true},
		{"bad gateway", errors.New("x"), makeResp(502, 0), true},
		{"unauthorized", errors.New("x"), makeResp(401, 0), false},
		{"not found", errors.New("x"), makeResp(404, 0), false},
		{"unprocessable", errors.New("x"), makeResp(422, 0), false},
		{"forbidden without rate info", errors.New("x"), makeResp(403, 0), false},
		{"forbidden secondary rate limit", errors.New("x"), makeResp(403, 5000), true},
		{"network failure, no response", errors.New("dial tcp: timeout"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err, tt.resp))
		})
	}
}

func TestRetryConfigApplyDefaults(t *testing.T) {
	cfg := &RetryConfig{MaxRetries: 5}
	cfg.ApplyDefaults()

	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 2.0, cfg.BackoffMultiplier)
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := retryOperation(ctx, &RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Hour,
		MaxBackoff:        time.Hour,
		BackoffMultiplier: 2,
	}, zap.NewNop(), func() (*github.Response, error) {
		calls++
		return &github.Response{Response: &http.Response{StatusCode: http.StatusInternalServerError}},
			errors.New("server error")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation preempts the backoff wait")
}
