// Package tools defines the tool-execution surface injected into the
// ensemble orchestrator. The current personas reason without tools; the
// registry exists so tool-using personas can be added without changing the
// orchestrator's dependency shape.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Result is one tool invocation's outcome.
type Result struct {
	ToolName string
	Output   any
	Err      string
}

// Executor runs named tools.
type Executor interface {
	Execute(ctx context.Context, name string, params map[string]any) (*Result, error)
	ListAvailable() []string
}

// Func is one registered tool implementation.
type Func func(ctx context.Context, params map[string]any) (any, error)

// Registry is a name-keyed Executor.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Func)}
}

var _ Executor = (*Registry)(nil)

// Register adds or replaces a tool.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	r.tools[name] = fn
	r.mu.Unlock()
}

// Execute runs the named tool. Tool errors are carried in the Result so
// callers can surface them to the model; an unknown name is a hard error.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (*Result, error) {
	r.mu.RLock()
	fn, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tool %q is not registered", name)
	}

	output, err := fn(ctx, params)
	res := &Result{ToolName: name, Output: output}
	if err != nil {
		res.Err = err.Error()
	}
	return res, nil
}

// ListAvailable returns registered tool names, sorted.
func (r *Registry) ListAvailable() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
