// Package adapter defines the source adapter contract and runs the enabled
// adapters into one observed graph.
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"projectgraph/internal/graph"
)

// Adapter maps a project root to a partial observed graph. Keys are
// project-relative forward-slash paths.
type Adapter interface {
	Name() string
	Extract(ctx context.Context, projectRoot string) (*graph.Graph, error)
}

// Factory builds a fresh adapter instance.
type Factory func() Adapter

// Registry keeps adapter factories in registration order.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Re-registering a name replaces the factory but
// keeps the original position.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; !ok {
		r.order = append(r.order, name)
	}
	r.factories[name] = f
}

// Names returns adapter names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Create instantiates the named adapter.
func (r *Registry) Create(name string) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("adapter not registered: %s", name)
	}
	return f(), nil
}

// DefaultRegistry is populated by adapter packages from init().
var DefaultRegistry = NewRegistry()

// DefaultEnabled is used when the settings name no adapters.
func DefaultEnabled() map[string]bool {
	return map[string]bool{"typescript": true, "python": false}
}

// Error records one adapter's failure. It is kept in the Outcome and never
// aborts the run.
type Error struct {
	Adapter string
	Err     error
}

func (e *Error) Error() string { return fmt.Sprintf("adapter %s: %v", e.Adapter, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Outcome is one adapter's contribution to a run.
type Outcome struct {
	Name      string
	Entities  int
	Relations int
	Duration  time.Duration
	Err       error
}

// Result is the merged observed graph plus per-adapter outcomes in
// registration order.
type Result struct {
	Observed *graph.Graph
	Outcomes []Outcome
}

// Failed returns the outcomes that carry an error.
func (r Result) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Run extracts with every enabled adapter concurrently and merges the
// partial graphs in registration order, so later adapters win on key
// collisions. A failing or panicking adapter contributes nothing.
func Run(ctx context.Context, root string, reg *Registry, enabled map[string]bool, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.Default()
	}
	if enabled == nil {
		enabled = DefaultEnabled()
	}

	var names []string
	for _, n := range reg.Names() {
		if enabled[n] {
			names = append(names, n)
		}
	}

	partials := make([]*graph.Graph, len(names))
	outcomes := make([]Outcome, len(names))

	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			start := time.Now()
			part, err := extract(ctx, reg, name, root)
			outcomes[i] = Outcome{Name: name, Duration: time.Since(start)}
			if err != nil {
				outcomes[i].Err = &Error{Adapter: name, Err: err}
				return nil
			}
			partials[i] = part
			outcomes[i].Entities, outcomes[i].Relations = part.Len()
			return nil
		})
	}
	_ = g.Wait()

	observed := graph.New()
	for i, part := range partials {
		if err := outcomes[i].Err; err != nil {
			logger.Warn("adapter failed", "adapter", names[i], "error", err)
			continue
		}
		observed.Merge(part)
		logger.Debug("adapter finished",
			"adapter", names[i],
			"entities", outcomes[i].Entities,
			"relations", outcomes[i].Relations,
			"duration", outcomes[i].Duration)
	}
	return Result{Observed: observed, Outcomes: outcomes}
}

func extract(ctx context.Context, reg *Registry, name, root string) (g *graph.Graph, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	a, err := reg.Create(name)
	if err != nil {
		return nil, err
	}
	g, err = a.Extract(ctx, root)
	if err != nil {
		return nil, err
	}
	if g == nil {
		g = graph.New()
	}
	return g, nil
}
