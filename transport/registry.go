package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type AdapterFactory func(config map[string]any) (Adapter, error)

// Registry maps URL schemes to adapters. Factories build adapters lazily when
// no instance is registered for a scheme.
type Registry struct {
	mu        sync.RWMutex
	adapters  map[string]Adapter
	factories map[string]AdapterFactory
}

func NewRegistry() *Registry {
	return &Registry{
		adapters:  map[string]Adapter{},
		factories: map[string]AdapterFactory{},
	}
}

// NewDefaultRegistry serves http and https through one REST adapter.
func NewDefaultRegistry(client HTTPDoer) *Registry {
	registry := NewRegistry()
	_ = registry.Register(NewRESTAdapter(client))
	return registry
}

func (r *Registry) Register(adapter Adapter) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	if adapter == nil {
		return fmt.Errorf("transport: adapter is nil")
	}
	schemes := make([]string, 0, len(adapter.Schemes()))
	for _, scheme := range adapter.Schemes() {
		if scheme = normalizeScheme(scheme); scheme != "" {
			schemes = append(schemes, scheme)
		}
	}
	if len(schemes) == 0 {
		return fmt.Errorf("transport: adapter must declare at least one scheme")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, scheme := range schemes {
		if _, exists := r.adapters[scheme]; exists {
			return fmt.Errorf("transport: scheme %q already registered", scheme)
		}
	}
	for _, scheme := range schemes {
		r.adapters[scheme] = adapter
	}
	return nil
}

func (r *Registry) RegisterFactory(scheme string, factory AdapterFactory) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	scheme = normalizeScheme(scheme)
	if scheme == "" {
		return fmt.Errorf("transport: scheme is required")
	}
	if factory == nil {
		return fmt.Errorf("transport: adapter factory is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[scheme]; exists {
		return fmt.Errorf("transport: adapter factory for scheme %q already registered", scheme)
	}
	r.factories[scheme] = factory
	return nil
}

// Build returns the adapter for scheme. A factory result is cached so later
// lookups reuse the same instance.
func (r *Registry) Build(scheme string, config map[string]any) (Adapter, error) {
	if r == nil {
		return nil, fmt.Errorf("transport: registry is nil")
	}
	scheme = normalizeScheme(scheme)
	if scheme == "" {
		return nil, fmt.Errorf("transport: scheme is required")
	}

	r.mu.RLock()
	adapter, ok := r.adapters[scheme]
	factory := r.factories[scheme]
	r.mu.RUnlock()
	if ok {
		return adapter, nil
	}
	if factory == nil {
		return nil, fmt.Errorf("transport: scheme %q not registered", scheme)
	}
	built, err := factory(cloneMap(config))
	if err != nil {
		return nil, err
	}
	if built == nil {
		return nil, fmt.Errorf("transport: factory for %q returned nil adapter", scheme)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, exists := r.adapters[scheme]; exists {
		return existing, nil
	}
	r.adapters[scheme] = built
	return built, nil
}

func (r *Registry) Get(scheme string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	scheme = normalizeScheme(scheme)
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[scheme]
	return adapter, ok
}

// Supports reports whether scheme has an adapter or a factory.
func (r *Registry) Supports(scheme string) bool {
	if r == nil {
		return false
	}
	scheme = normalizeScheme(scheme)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.adapters[scheme]; ok {
		return true
	}
	_, ok := r.factories[scheme]
	return ok
}

func (r *Registry) Schemes() []string {
	if r == nil {
		return []string{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]struct{}{}
	for scheme := range r.adapters {
		seen[scheme] = struct{}{}
	}
	for scheme := range r.factories {
		seen[scheme] = struct{}{}
	}
	schemes := make([]string, 0, len(seen))
	for scheme := range seen {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}

func normalizeScheme(scheme string) string {
	return strings.TrimSpace(strings.ToLower(scheme))
}

func cloneMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}
