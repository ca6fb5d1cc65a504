package publish

import (
	"context"
	"fmt"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixd/internal/config"
)

// committerName identifies automated commits in repository history.
const committerName = "fixd"

// timeNow is swapped in tests.
var timeNow = time.Now

// GitWorkspace commits and pushes applied fixes from a local checkout.
type GitWorkspace struct {
	workDir string
	token   config.Secret
	logger  *zap.Logger
}

// NewGitWorkspace wraps the checkout at workDir. The token authenticates
// pushes; an unset token restricts the workspace to local commits.
func NewGitWorkspace(workDir string, token config.Secret, logger *zap.Logger) *GitWorkspace {
	return &GitWorkspace{workDir: workDir, token: token, logger: logger}
}

// CommitAndPush stages the given files on a new branch, commits them, and
// pushes the branch to origin.
func (w *GitWorkspace) CommitAndPush(ctx context.Context, branch, message string, files []string) error {
	repo, err := git.PlainOpen(w.workDir)
	if err != nil {
		return fmt.Errorf("open repository at %s: %w", w.workDir, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	// Branch off the current HEAD so the push carries only our commit.
	err = wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
		Keep:   true,
	})
	if err != nil {
		return fmt.Errorf("create branch %s: %w", branch, err)
	}

	for _, file := range files {
		if _, err := wt.Add(file); err != nil {
			return fmt.Errorf("stage %s: %w", file, err)
		}
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name: committerName,
			When: timeNow(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit on %s: %w", branch, err)
	}

	pushOpts := &git.PushOptions{
		RemoteName: "origin",
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)),
		},
	}
	if w.token.IsSet() {
		pushOpts.Auth = &githttp.BasicAuth{
			Username: committerName, // anything non-empty
			Password: w.token.Value(),
		}
	}

	if err := repo.PushContext(ctx, pushOpts); err != nil {
		return fmt.Errorf("push %s: %w", branch, err)
	}

	w.logger.Info("pushed fix branch",
		zap.String("branch", branch),
		zap.String("commit", hash.String()),
		zap.Int("files", len(files)),
	)
	return nil
}
