package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/time/rate"
)

// ToolSet routes each capability to its own handler. Invoking a capability
// with no handler is an error.
type ToolSet map[string]ToolAdapterFunc

// Invoke calls the handler registered for capability.
func (s ToolSet) Invoke(ctx context.Context, capability string, params map[string]any) (any, error) {
	h, ok := s[capability]
	if !ok {
		return nil, fmt.Errorf("no handler for capability %q", capability)
	}
	return h(ctx, capability, params)
}

// Capabilities returns the handled capability names, sorted.
func (s ToolSet) Capabilities() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RateLimitedTools limits calls to an inner ToolAdapter with one token
// bucket per capability.
type RateLimitedTools struct {
	inner ToolAdapter
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimitedTools wraps inner so that each capability is invoked at
// most rps times per second with the given burst. A non-positive rps
// disables limiting.
func NewRateLimitedTools(inner ToolAdapter, rps float64, burst int) *RateLimitedTools {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedTools{
		inner:    inner,
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Invoke waits for the capability's limiter and then calls the inner
// adapter. A cancelled wait is returned as an error.
func (r *RateLimitedTools) Invoke(ctx context.Context, capability string, params map[string]any) (any, error) {
	if err := r.limiter(capability).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", capability, err)
	}
	return r.inner.Invoke(ctx, capability, params)
}

func (r *RateLimitedTools) limiter(capability string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[capability]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[capability] = l
	}
	return l
}
