// Package invoke is the tool-invocation backend: it maps a tool name to a
// handler and runs it with the task's argument payload. The scheduler only
// sees the Invoker interface; calls may take arbitrary time and must not be
// assumed idempotent.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	logx "taskd/pkg/logx"
)

var ErrUnknownTool = errors.New("unknown tool")

// Invoker executes one external effect.
type Invoker interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (string, error)
}

// ToolFunc is a single registered tool handler.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// Registry dispatches invocations to registered tools. Safe for concurrent
// use; registration usually happens once at composition time.
type Registry struct {
	mu    sync.RWMutex
	log   logx.Logger
	tools map[string]ToolFunc
}

func NewRegistry(log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{log: log, tools: map[string]ToolFunc{}}
}

// Register installs (or replaces) a tool handler.
func (r *Registry) Register(name string, fn ToolFunc) {
	if name == "" || fn == nil {
		return
	}
	r.mu.Lock()
	r.tools[name] = fn
	r.mu.Unlock()
	r.log.Debug("tool registered", logx.String("tool", name))
}

// Tools returns the registered tool names, sorted.
func (r *Registry) Tools() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) Invoke(ctx context.Context, tool string, args map[string]any) (string, error) {
	r.mu.RLock()
	fn := r.tools[tool]
	r.mu.RUnlock()
	if fn == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
	return fn(ctx, args)
}
