package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// HandlerFactory returns a fresh handler instance. The instance is checked
// against the contract the caller expects at resolution time.
type HandlerFactory func() (any, error)

// HandlerRegistry maps configured handler names to factories. It replaces
// class-name based loading for computed values, dynamic nodes, enqueue
// filters and inbound actions.
type HandlerRegistry struct {
	mu        sync.RWMutex
	factories map[string]HandlerFactory
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{factories: make(map[string]HandlerFactory)}
}

func (r *HandlerRegistry) Register(name string, factory HandlerFactory) error {
	if r == nil {
		return fmt.Errorf("core: handler registry is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("core: handler name is required")
	}
	if factory == nil {
		return fmt.Errorf("core: handler factory is required for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("core: handler already registered: %s", name)
	}
	r.factories[name] = factory
	return nil
}

// RegisterInstance registers a shared, stateless handler value.
func (r *HandlerRegistry) RegisterInstance(name string, handler any) error {
	if handler == nil {
		return fmt.Errorf("core: handler instance is required for %q", strings.TrimSpace(name))
	}
	return r.Register(name, func() (any, error) { return handler, nil })
}

func (r *HandlerRegistry) Has(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[strings.TrimSpace(name)]
	return ok
}

func (r *HandlerRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instantiate runs the factory registered under name.
func (r *HandlerRegistry) Instantiate(name string) (instance any, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, contractViolationError(name, "a registered handler name")
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotRegistered, name)
	}
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, contractViolationError(name, "a registered handler")
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			instance = nil
			err = invocationError(name, fmt.Errorf("factory panic: %v", recovered))
		}
	}()
	instance, err = factory()
	if err != nil {
		return nil, invocationError(name, err)
	}
	if instance == nil {
		return nil, contractViolationError(name, "a non-nil handler")
	}
	return instance, nil
}

// ResolveHandler instantiates name and asserts it implements T.
func ResolveHandler[T any](registry *HandlerRegistry, name string, contract string) (T, error) {
	var zero T
	instance, err := registry.Instantiate(name)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, contractViolationError(strings.TrimSpace(name), contract)
	}
	return typed, nil
}
