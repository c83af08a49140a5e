package backend

import (
	"fmt"
	"sync"
)

// Factory holds the configured Backend implementations keyed by provider
// name. Which provider backs a given agent run is declared in the agent spec;
// the orchestrator only looks the name up here.
type Factory struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewFactory constructs a factory. Backends are attached with Register.
func NewFactory() *Factory {
	return &Factory{backends: make(map[string]Backend)}
}

// Register attaches or replaces the backend for a provider name.
func (f *Factory) Register(name string, b Backend) {
	if name == "" || b == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backends[name] = b
}

// Backend returns the backend registered for the provider name.
func (f *Factory) Backend(name string) (Backend, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.backends[name]
	if !ok {
		return nil, fmt.Errorf("provider %q is not registered", name)
	}
	return b, nil
}

// Providers returns the registered provider names.
func (f *Factory) Providers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.backends))
	for name := range f.backends {
		names = append(names, name)
	}
	return names
}
