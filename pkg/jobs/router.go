package jobs

import (
	"context"
	"fmt"
	"sync"
)

// Router dispatches jobs to handlers registered per job type.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRouter constructs an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Register binds a handler to a job type, replacing any previous binding.
func (r *Router) Register(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

// Handle satisfies Handler. Unknown job types fail, which makes them visible in
// retry logs rather than silently disappearing.
func (r *Router) Handle(ctx context.Context, job Job) error {
	r.mu.RLock()
	h, ok := r.handlers[job.Type]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for job type %q", job.Type)
	}
	return h(ctx, job)
}
