// Package capability defines the boundary between the task executor and the
// external services that actually perform agent work (LLM calls, git
// operations). Implementations live under internal/platform.
package capability

import (
	"context"
	"encoding/json"

	"github.com/vkalinin/devagent-api/internal/domain"
)

// Provider performs the work for one or more capabilities. Invoke blocks
// until the work finishes or ctx is done; the executor bounds each attempt
// with a timeout context. Errors must be classified with ErrTransient or
// ErrPermanent so the executor can decide whether to retry.
type Provider interface {
	// Invoke executes the capability against the supplied context and
	// returns the structured result payload on success.
	Invoke(ctx context.Context, cap domain.Capability, taskCtx domain.TaskContext) (json.RawMessage, error)
}

// Reporter receives best-effort progress updates during a long-running
// invocation. Progress values are 0-100 and must be non-decreasing within a
// single attempt.
type Reporter interface {
	ReportProgress(ctx context.Context, progress int)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ctx context.Context, progress int)

// ReportProgress implements Reporter.
func (f ReporterFunc) ReportProgress(ctx context.Context, progress int) {
	f(ctx, progress)
}

type reporterKey struct{}

// WithReporter returns a copy of ctx carrying a progress reporter for the
// duration of one invocation.
func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

// ReporterFromContext retrieves the reporter stored in ctx, or a no-op
// reporter when none is present, so providers can always report.
func ReporterFromContext(ctx context.Context) Reporter {
	if r, ok := ctx.Value(reporterKey{}).(Reporter); ok {
		return r
	}
	return ReporterFunc(func(context.Context, int) {})
}
