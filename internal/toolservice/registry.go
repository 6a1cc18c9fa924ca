// Package toolservice provides a reference exec.ToolRouter/preflight.Availability
// implementation: a thread-safe registry of named tools, with per-call timeout
// enforcement around each invocation.
package toolservice

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Tool is a single named capability a harmony script can invoke by recipient.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// RegistryConfig configures a Registry's invocation behavior.
type RegistryConfig struct {
	// PerToolTimeout bounds a single Invoke call. Zero disables the timeout.
	PerToolTimeout time.Duration
}

// DefaultRegistryConfig returns the registry defaults: a 30 second per-call
// timeout.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{PerToolTimeout: 30 * time.Second}
}

// Registry is a thread-safe collection of Tools. It implements both
// exec.ToolRouter (Invoke) and preflight.Availability (IsAvailable,
// ListAvailable), so one Registry instance can be wired as both collaborators
// for a session service. Recipient lookup is case-insensitive; ListAvailable
// reports each tool's registered casing.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool // keyed by lower-cased name
	config RegistryConfig
}

// NewRegistry creates an empty registry.
func NewRegistry(config RegistryConfig) *Registry {
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = DefaultRegistryConfig().PerToolTimeout
	}
	return &Registry{tools: make(map[string]Tool), config: config}
}

// Register adds or replaces a tool under its own Name().
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[strings.ToLower(tool.Name())] = tool
}

// Unregister removes a tool by name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, strings.ToLower(name))
}

// Invoke implements exec.ToolRouter: looks up recipient and runs it under the
// registry's per-call timeout.
func (r *Registry) Invoke(ctx context.Context, recipient string, args map[string]any) (any, error) {
	r.mu.RLock()
	tool, ok := r.tools[strings.ToLower(recipient)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("toolservice: tool not found: %s", recipient)
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if r.config.PerToolTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, r.config.PerToolTimeout)
		defer cancel()
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := tool.Invoke(callCtx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-callCtx.Done():
		return nil, fmt.Errorf("toolservice: %s: %w", recipient, callCtx.Err())
	case o := <-done:
		return o.result, o.err
	}
}

// IsAvailable implements preflight.Availability.
func (r *Registry) IsAvailable(recipient string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[strings.ToLower(recipient)]
	return ok
}

// ListAvailable implements preflight.Availability.
func (r *Registry) ListAvailable() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for _, tool := range r.tools {
		names = append(names, tool.Name())
	}
	return names
}
