package githost

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkalinin/devagent-api/internal/capability"
	"github.com/vkalinin/devagent-api/internal/domain"
)

type fakePulls struct {
	created *github.NewPullRequest
	owner   string
	repo    string
	err     error
}

func (f *fakePulls) Create(
	_ context.Context,
	owner, repo string,
	pull *github.NewPullRequest,
) (*github.PullRequest, *github.Response, error) {
	f.owner = owner
	f.repo = repo
	f.created = pull
	if f.err != nil {
		return nil, nil, f.err
	}
	return &github.PullRequest{
		Number:  github.Int(7),
		HTMLURL: github.String("https://github.com/acme/api/pull/7"),
	}, nil, nil
}

func newTestProvider(pulls pullRequestCreator) *Provider {
	return &Provider{
		token:       "test-token",
		authorName:  "devagent",
		authorEmail: "devagent@localhost",
		workDir:     "",
		pulls:       pulls,
		logger:      slog.Default(),
	}
}

func TestParseGitHubRepo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{name: "https with .git", url: "https://github.com/acme/api.git", wantOwner: "acme", wantRepo: "api"},
		{name: "https without .git", url: "https://github.com/acme/api", wantOwner: "acme", wantRepo: "api"},
		{name: "ssh", url: "git@github.com:acme/api.git", wantOwner: "acme", wantRepo: "api"},
		{name: "other host", url: "https://gitlab.com/acme/api.git", wantErr: true},
		{name: "missing repo", url: "https://github.com/acme", wantErr: true},
		{name: "empty", url: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			owner, repo, err := parseGitHubRepo(tc.url)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantOwner, owner)
			assert.Equal(t, tc.wantRepo, repo)
		})
	}
}

func TestInvokeRejectsNonGitCapability(t *testing.T) {
	t.Parallel()

	p := newTestProvider(&fakePulls{})

	_, err := p.Invoke(context.Background(), domain.CapabilityAnalyze, domain.TaskContext{
		Code: "func main() {}",
	})
	assert.ErrorIs(t, err, capability.ErrUnsupportedCapability)
}

func TestInvokeUnknownOperationIsPermanent(t *testing.T) {
	t.Parallel()

	p := newTestProvider(&fakePulls{})

	_, err := p.Invoke(context.Background(), domain.CapabilityGitOp, domain.TaskContext{
		Repository: "https://github.com/acme/api.git",
		Operation:  "rebase",
	})
	require.Error(t, err)
	assert.True(t, capability.IsPermanent(err))
}

func TestPullRequestCreation(t *testing.T) {
	t.Parallel()

	pulls := &fakePulls{}
	p := newTestProvider(pulls)

	result, err := p.Invoke(context.Background(), domain.CapabilityGitOp, domain.TaskContext{
		Repository:    "https://github.com/acme/api.git",
		Operation:     OpPullRequest,
		Branch:        "feature/retry",
		CommitMessage: "Add retry handling",
	})
	require.NoError(t, err)

	assert.Equal(t, "acme", pulls.owner)
	assert.Equal(t, "api", pulls.repo)
	require.NotNil(t, pulls.created)
	assert.Equal(t, "Add retry handling", pulls.created.GetTitle())
	assert.Equal(t, "feature/retry", pulls.created.GetHead())

	assert.Contains(t, string(result), `"number":7`)
	assert.Contains(t, string(result), "pull/7")
}

func TestPullRequestRequiresBranchAndTitle(t *testing.T) {
	t.Parallel()

	p := newTestProvider(&fakePulls{})

	_, err := p.Invoke(context.Background(), domain.CapabilityGitOp, domain.TaskContext{
		Repository:    "https://github.com/acme/api.git",
		Operation:     OpPullRequest,
		CommitMessage: "no branch",
	})
	require.Error(t, err)
	assert.True(t, capability.IsPermanent(err))

	_, err = p.Invoke(context.Background(), domain.CapabilityGitOp, domain.TaskContext{
		Repository: "https://github.com/acme/api.git",
		Operation:  OpPullRequest,
		Branch:     "feature/x",
	})
	require.Error(t, err)
	assert.True(t, capability.IsPermanent(err))
}

func TestPullRequestAPIErrorIsTransient(t *testing.T) {
	t.Parallel()

	p := newTestProvider(&fakePulls{err: errors.New("502 bad gateway")})

	_, err := p.Invoke(context.Background(), domain.CapabilityGitOp, domain.TaskContext{
		Repository:    "https://github.com/acme/api.git",
		Operation:     OpPullRequest,
		Branch:        "feature/x",
		CommitMessage: "title",
	})
	require.Error(t, err)
	assert.True(t, capability.IsTransient(err))
}
