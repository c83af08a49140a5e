// Package tools provides the read-only claim accessor tools and the registry
// that dispatches agent tool calls to them. Tools are pure functions of the
// claim snapshot plus date and number arithmetic; the registry is stateless
// and safe for unlimited concurrent use across agents and claims.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/clearlane/claimflow/pkg/models"
)

var (
	// ErrUnknownTool indicates a tool name that is not registered anywhere.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrNotPermitted indicates a tool outside the calling agent's declared set.
	ErrNotPermitted = errors.New("tool not permitted for agent")
	// ErrNilHandler indicates a registration with a nil handler.
	ErrNilHandler = errors.New("tool handler is nil")
)

// Handler executes one tool call against a claim snapshot.
type Handler func(ctx context.Context, claim *models.Claim, args map[string]any) (string, error)

// Tool pairs a descriptor with its handler.
type Tool struct {
	Desc    models.ToolDescriptor
	Handler Handler
}

// Registry stores tools by name and executes tool calls.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) error {
	if t.Desc.Name == "" {
		return fmt.Errorf("register: tool name is empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("register %q: %w", t.Desc.Name, ErrNilHandler)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Desc.Name]; !exists {
		r.order = append(r.order, t.Desc.Name)
	}
	r.tools[t.Desc.Name] = t
	return nil
}

// Invoke executes the named tool against the claim. An unregistered name
// fails with ErrUnknownTool.
func (r *Registry) Invoke(ctx context.Context, name string, claim *models.Claim, args map[string]any) (models.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return models.ToolResult{}, err
	}

	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return models.ToolResult{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	content, err := t.Handler(ctx, claim, args)
	if err != nil {
		return models.ToolResult{Err: err.Error()}, nil
	}
	return models.ToolResult{Content: content}, nil
}

// Descriptors returns descriptors for the given tool names, in the given
// order. Names that are not registered are reported via ErrUnknownTool so a
// bad allowlist fails at configuration time, not mid-claim.
func (r *Registry) Descriptors(names []string) ([]models.ToolDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]models.ToolDescriptor, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
		}
		descs = append(descs, t.Desc)
	}
	return descs, nil
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Scope binds the registry to one claim and one agent's allowlist. It is the
// only tool-invocation handle an agent runner receives: calls outside the
// allowlist fail with ErrNotPermitted, which is how one agent's reasoning is
// kept from reading claim fields another agent is scoped away from.
type Scope struct {
	registry *Registry
	claim    *models.Claim
	allowed  map[string]bool
}

// NewScope creates a scoped view over the registry for one agent.
func NewScope(registry *Registry, claim *models.Claim, allowlist []string) *Scope {
	allowed := make(map[string]bool, len(allowlist))
	for _, name := range allowlist {
		allowed[name] = true
	}
	return &Scope{registry: registry, claim: claim, allowed: allowed}
}

// Invoke executes the named tool if it is inside the scope's allowlist.
func (s *Scope) Invoke(ctx context.Context, name string, args map[string]any) (models.ToolResult, error) {
	if !s.allowed[name] {
		return models.ToolResult{}, fmt.Errorf("%w: %q", ErrNotPermitted, name)
	}
	return s.registry.Invoke(ctx, name, s.claim, args)
}
