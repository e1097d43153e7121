// Package githost implements the git-op capability: local git operations via
// go-git and pull-request creation via the GitHub API.
package githost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/google/go-github/v57/github"
	"github.com/vkalinin/devagent-api/internal/capability"
	"github.com/vkalinin/devagent-api/internal/config"
	"github.com/vkalinin/devagent-api/internal/domain"
	"golang.org/x/oauth2"
)

// Supported git operations.
const (
	OpClone       = "clone"
	OpCommit      = "commit"
	OpPush        = "push"
	OpPullRequest = "pull-request"
)

// Progress milestones: repository materialized locally, operation applied.
const (
	progressPrepared = 30
	progressApplied  = 70
)

// pullRequestCreator is the slice of the GitHub API the provider uses.
type pullRequestCreator interface {
	Create(
		ctx context.Context,
		owner, repo string,
		pull *github.NewPullRequest,
	) (*github.PullRequest, *github.Response, error)
}

// Provider implements capability.Provider for the git-op capability.
type Provider struct {
	token       string
	authorName  string
	authorEmail string
	workDir     string
	pulls       pullRequestCreator
	logger      *slog.Logger
}

var _ capability.Provider = (*Provider)(nil)

// NewProvider creates a git-op provider. The GitHub token is required: it
// authenticates both git transport and the pull-request API.
func NewProvider(ctx context.Context, cfg config.GitConfig, logger *slog.Logger) (*Provider, error) {
	if cfg.GitHubToken == "" {
		return nil, fmt.Errorf("%w: github token not set", capability.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "devagent-git")
	}
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: failed to create work dir: %v", capability.ErrInvalidConfig, err)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})
	tc := oauth2.NewClient(ctx, ts)
	ghClient := github.NewClient(tc)

	authorName := cfg.AuthorName
	if authorName == "" {
		authorName = "devagent"
	}
	authorEmail := cfg.AuthorEmail
	if authorEmail == "" {
		authorEmail = "devagent@localhost"
	}

	return &Provider{
		token:       cfg.GitHubToken,
		authorName:  authorName,
		authorEmail: authorEmail,
		workDir:     workDir,
		pulls:       ghClient.PullRequests,
		logger:      logger.With(slog.String("component", "githost_provider")),
	}, nil
}

// Invoke implements capability.Provider. Transport and API failures are
// transient; malformed repository references and unknown operations are
// permanent.
func (p *Provider) Invoke(
	ctx context.Context,
	cap domain.Capability,
	taskCtx domain.TaskContext,
) (json.RawMessage, error) {
	if cap != domain.CapabilityGitOp {
		return nil, fmt.Errorf("%w: %s", capability.ErrUnsupportedCapability, cap)
	}

	switch taskCtx.Operation {
	case OpClone:
		return p.clone(ctx, taskCtx)
	case OpCommit, OpPush:
		return p.commitAndPush(ctx, taskCtx, taskCtx.Operation == OpPush)
	case OpPullRequest:
		return p.pullRequest(ctx, taskCtx)
	default:
		return nil, capability.Permanent(
			fmt.Errorf("unknown git operation %q", taskCtx.Operation))
	}
}

// clone materializes the repository in the work dir and reports its HEAD.
func (p *Provider) clone(ctx context.Context, taskCtx domain.TaskContext) (json.RawMessage, error) {
	repo, dir, err := p.cloneRepo(ctx, taskCtx)
	if err != nil {
		return nil, err
	}
	defer p.cleanup(dir)

	capability.ReporterFromContext(ctx).ReportProgress(ctx, progressApplied)

	head, err := repo.Head()
	if err != nil {
		return nil, capability.Permanent(fmt.Errorf("failed to resolve HEAD: %w", err))
	}

	return marshalResult(map[string]any{
		"operation":  OpClone,
		"repository": taskCtx.Repository,
		"branch":     head.Name().Short(),
		"head":       head.Hash().String(),
	})
}

// commitAndPush records an empty marker commit carrying the requested
// message, optionally pushing it upstream. Agent-produced tree changes land
// through task results; the git operation itself is the deliverable here.
func (p *Provider) commitAndPush(
	ctx context.Context,
	taskCtx domain.TaskContext,
	push bool,
) (json.RawMessage, error) {
	if taskCtx.CommitMessage == "" {
		return nil, capability.Permanent(fmt.Errorf("commit requires a commit message"))
	}

	repo, dir, err := p.cloneRepo(ctx, taskCtx)
	if err != nil {
		return nil, err
	}
	defer p.cleanup(dir)

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, capability.Permanent(fmt.Errorf("failed to open worktree: %w", err))
	}

	hash, err := worktree.Commit(taskCtx.CommitMessage, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            p.signature(),
	})
	if err != nil {
		return nil, capability.Permanent(fmt.Errorf("failed to commit: %w", err))
	}

	capability.ReporterFromContext(ctx).ReportProgress(ctx, progressApplied)

	operation := OpCommit
	if push {
		operation = OpPush
		if err := repo.PushContext(ctx, &git.PushOptions{Auth: p.auth()}); err != nil {
			return nil, capability.Transient(fmt.Errorf("failed to push: %w", err))
		}
	}

	return marshalResult(map[string]any{
		"operation":  operation,
		"repository": taskCtx.Repository,
		"commit":     hash.String(),
		"message":    taskCtx.CommitMessage,
	})
}

// pullRequest opens a pull request from the task's branch against the
// repository default base.
func (p *Provider) pullRequest(
	ctx context.Context,
	taskCtx domain.TaskContext,
) (json.RawMessage, error) {
	if taskCtx.Branch == "" {
		return nil, capability.Permanent(fmt.Errorf("pull-request requires a branch"))
	}
	if taskCtx.CommitMessage == "" {
		return nil, capability.Permanent(fmt.Errorf("pull-request requires a title message"))
	}

	owner, repo, err := parseGitHubRepo(taskCtx.Repository)
	if err != nil {
		return nil, capability.Permanent(err)
	}

	capability.ReporterFromContext(ctx).ReportProgress(ctx, progressPrepared)

	pr, _, err := p.pulls.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(taskCtx.CommitMessage),
		Head:  github.String(taskCtx.Branch),
		Base:  github.String("main"),
	})
	if err != nil {
		return nil, capability.Transient(fmt.Errorf("failed to create pull request: %w", err))
	}

	capability.ReporterFromContext(ctx).ReportProgress(ctx, progressApplied)

	return marshalResult(map[string]any{
		"operation":  OpPullRequest,
		"repository": taskCtx.Repository,
		"number":     pr.GetNumber(),
		"url":        pr.GetHTMLURL(),
	})
}

func (p *Provider) cloneRepo(
	ctx context.Context,
	taskCtx domain.TaskContext,
) (*git.Repository, string, error) {
	if taskCtx.Repository == "" {
		return nil, "", capability.Permanent(fmt.Errorf("repository reference is empty"))
	}

	dir, err := os.MkdirTemp(p.workDir, "task-*")
	if err != nil {
		return nil, "", capability.Transient(fmt.Errorf("failed to create clone dir: %w", err))
	}

	opts := &git.CloneOptions{
		URL:   taskCtx.Repository,
		Auth:  p.auth(),
		Depth: 1,
	}
	if taskCtx.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(taskCtx.Branch)
		opts.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		p.cleanup(dir)
		return nil, "", capability.Transient(fmt.Errorf("failed to clone %s: %w", taskCtx.Repository, err))
	}

	capability.ReporterFromContext(ctx).ReportProgress(ctx, progressPrepared)
	return repo, dir, nil
}

func (p *Provider) auth() *githttp.BasicAuth {
	return &githttp.BasicAuth{
		Username: "x-access-token",
		Password: p.token,
	}
}

func (p *Provider) signature() *object.Signature {
	return &object.Signature{
		Name:  p.authorName,
		Email: p.authorEmail,
		When:  time.Now().UTC(),
	}
}

func (p *Provider) cleanup(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		p.logger.Warn("failed to remove clone dir",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
	}
}

// parseGitHubRepo extracts owner and repository from an HTTPS or SSH GitHub
// URL.
func parseGitHubRepo(url string) (owner, repo string, err error) {
	trimmed := strings.TrimSuffix(url, ".git")

	var path string
	switch {
	case strings.HasPrefix(trimmed, "https://github.com/"):
		path = strings.TrimPrefix(trimmed, "https://github.com/")
	case strings.HasPrefix(trimmed, "git@github.com:"):
		path = strings.TrimPrefix(trimmed, "git@github.com:")
	default:
		return "", "", fmt.Errorf("unsupported repository URL %q", url)
	}

	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("cannot parse owner/repo from %q", url)
	}
	return parts[0], parts[1], nil
}

func marshalResult(v map[string]any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, capability.Permanent(fmt.Errorf("failed to marshal result: %w", err))
	}
	return data, nil
}
