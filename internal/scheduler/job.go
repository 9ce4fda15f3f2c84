package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// JobContext is handed to every execution. Data is a private copy.
type JobContext struct {
	JobID       string
	Kind        string
	Group       string
	Origin      string
	ScheduledAt time.Time
	Data        map[string]any
}

// Job is one executable unit. Execute should honor ctx cancellation.
type Job interface {
	Execute(ctx context.Context, jc JobContext) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context, jc JobContext) error

func (f JobFunc) Execute(ctx context.Context, jc JobContext) error { return f(ctx, jc) }

// Factory produces a fresh Job for every execution.
type Factory func() Job

// Registry maps job kinds to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(kind string, f Factory) error {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return fmt.Errorf("scheduler: empty job kind")
	}
	if f == nil {
		return fmt.Errorf("scheduler: nil factory for %q", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateKind, kind)
	}
	r.factories[kind] = f
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(kind string, f Factory) {
	if err := r.Register(kind, f); err != nil {
		panic(err)
	}
}

func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

func (r *Registry) Kinds() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Resolve builds a Job for kind.
func (r *Registry) Resolve(kind string) (Job, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	j := f()
	if j == nil {
		return nil, fmt.Errorf("scheduler: factory for %q returned nil", kind)
	}
	return j, nil
}
