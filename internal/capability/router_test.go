package capability

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkalinin/devagent-api/internal/domain"
)

type namedProvider struct {
	name string
}

func (p *namedProvider) Invoke(
	_ context.Context,
	_ domain.Capability,
	_ domain.TaskContext,
) (json.RawMessage, error) {
	return json.RawMessage(`{"provider":"` + p.name + `"}`), nil
}

func TestRouterDispatchesByCapability(t *testing.T) {
	t.Parallel()

	llm := &namedProvider{name: "llm"}
	git := &namedProvider{name: "git"}

	router := NewRouter()
	router.Register(llm, domain.CapabilityAnalyze, domain.CapabilityGenerate, domain.CapabilityFix)
	router.Register(git, domain.CapabilityGitOp)

	result, err := router.Invoke(context.Background(), domain.CapabilityFix, domain.TaskContext{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"provider":"llm"}`, string(result))

	result, err = router.Invoke(context.Background(), domain.CapabilityGitOp, domain.TaskContext{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"provider":"git"}`, string(result))
}

func TestRouterRejectsUnregisteredCapability(t *testing.T) {
	t.Parallel()

	router := NewRouter()
	router.Register(&namedProvider{name: "llm"}, domain.CapabilityAnalyze)

	_, err := router.Invoke(context.Background(), domain.CapabilityGitOp, domain.TaskContext{})
	assert.ErrorIs(t, err, ErrUnsupportedCapability)
	assert.True(t, IsPermanent(err))
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	assert.True(t, IsTransient(Transient(assert.AnError)))
	assert.False(t, IsTransient(Permanent(assert.AnError)))
	assert.True(t, IsPermanent(Permanent(assert.AnError)))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.NoError(t, Transient(nil))
	assert.NoError(t, Permanent(nil))
}

func TestReporterFromContextDefaultsToNoop(t *testing.T) {
	t.Parallel()

	// Must not panic when nothing was attached.
	ReporterFromContext(context.Background()).ReportProgress(context.Background(), 50)

	var got int
	ctx := WithReporter(context.Background(), ReporterFunc(func(_ context.Context, p int) {
		got = p
	}))
	ReporterFromContext(ctx).ReportProgress(ctx, 70)
	assert.Equal(t, 70, got)
}
