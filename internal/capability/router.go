package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vkalinin/devagent-api/internal/domain"
)

// Router dispatches invocations to the provider registered for each
// capability.
type Router struct {
	providers map[domain.Capability]Provider
}

var _ Provider = (*Router)(nil)

// NewRouter creates an empty router. Register providers before use.
func NewRouter() *Router {
	return &Router{providers: make(map[domain.Capability]Provider)}
}

// Register binds a provider to one or more capabilities. Later registrations
// for the same capability win.
func (r *Router) Register(p Provider, caps ...domain.Capability) {
	for _, c := range caps {
		r.providers[c] = p
	}
}

// Invoke implements Provider by delegating to the registered provider.
// Capabilities with no provider fail permanently.
func (r *Router) Invoke(
	ctx context.Context,
	cap domain.Capability,
	taskCtx domain.TaskContext,
) (json.RawMessage, error) {
	p, ok := r.providers[cap]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCapability, cap)
	}
	return p.Invoke(ctx, cap, taskCtx)
}
