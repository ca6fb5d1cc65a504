// Package analysis adapts external command-line tools to the analyzer
// and suggester contracts. The analyzer runs once per execution and
// reports findings as JSON; the suggester runs once per issue.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixd/internal/agents"
)

// CommandAnalyzer runs an external analyzer process in the working
// directory and parses its stdout as a JSON array of issues.
type CommandAnalyzer struct {
	argv    []string
	workDir string
	logger  *zap.Logger
}

// NewCommandAnalyzer creates an analyzer from an argv. The first element
// is the executable.
func NewCommandAnalyzer(argv []string, workDir string, logger *zap.Logger) (*CommandAnalyzer, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("analyzer command is not configured")
	}
	return &CommandAnalyzer{argv: argv, workDir: workDir, logger: logger}, nil
}

// Analyze runs the tool and returns its findings. An empty stdout means
// zero findings, not an error.
func (a *CommandAnalyzer) Analyze(ctx context.Context, repository string) ([]agents.Issue, error) {
	stdout, err := runCommand(ctx, a.argv, a.workDir, nil)
	if err != nil {
		return nil, fmt.Errorf("analyzer %s: %w", a.argv[0], err)
	}

	if len(bytes.TrimSpace(stdout)) == 0 {
		return nil, nil
	}

	var issues []agents.Issue
	if err := json.Unmarshal(stdout, &issues); err != nil {
		return nil, fmt.Errorf("analyzer %s: malformed output: %w", a.argv[0], err)
	}

	a.logger.Debug("analyzer finished",
		zap.String("repository", repository),
		zap.Int("issues", len(issues)),
	)
	return issues, nil
}

// CommandSuggester runs an external suggestion process per issue. The
// issue arrives as JSON on stdin; the suggestion comes back as JSON on
// stdout. No output means no suggestion.
type CommandSuggester struct {
	argv    []string
	workDir string
	logger  *zap.Logger
}

// NewCommandSuggester creates a suggester from an argv.
func NewCommandSuggester(argv []string, workDir string, logger *zap.Logger) (*CommandSuggester, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("suggester command is not configured")
	}
	return &CommandSuggester{argv: argv, workDir: workDir, logger: logger}, nil
}

// Suggest asks the tool for a fix. A nil suggestion with nil error means
// the tool declined; the issue stays open.
func (s *CommandSuggester) Suggest(ctx context.Context, issue agents.Issue) (*agents.Suggestion, error) {
	input, err := json.Marshal(issue)
	if err != nil {
		return nil, fmt.Errorf("encode issue %s: %w", issue.ID, err)
	}

	stdout, err := runCommand(ctx, s.argv, s.workDir, input)
	if err != nil {
		return nil, fmt.Errorf("suggester %s: %w", s.argv[0], err)
	}

	if len(bytes.TrimSpace(stdout)) == 0 {
		return nil, nil
	}

	var suggestion agents.Suggestion
	if err := json.Unmarshal(stdout, &suggestion); err != nil {
		return nil, fmt.Errorf("suggester %s: malformed output: %w", s.argv[0], err)
	}
	return &suggestion, nil
}

// runCommand executes argv in dir with optional stdin, returning stdout.
// A non-zero exit includes trimmed stderr in the error.
func runCommand(ctx context.Context, argv []string, dir string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("%w: %s", err, detail)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
