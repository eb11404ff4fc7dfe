package webhooks

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-webhooks/core"
)

// HandlerPack groups named handler factories contributed by a downstream
// module. Names are registered as-is into the service handler registry.
type HandlerPack struct {
	Name     string
	Handlers map[string]core.HandlerFactory
}

type PayloadHookPack struct {
	Name  string
	Hooks []core.PayloadHook
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	handlerPacks map[string]HandlerPack
	hookPacks    map[string]PayloadHookPack
	bundles      map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		handlerPacks: map[string]HandlerPack{},
		hookPacks:    map[string]PayloadHookPack{},
		bundles:      map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterHandlerPack(pack HandlerPack) error {
	if h == nil {
		return fmt.Errorf("webhooks: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("webhooks: handler pack name is required")
	}
	if len(pack.Handlers) == 0 {
		return fmt.Errorf("webhooks: handler pack %q has no handlers", name)
	}

	normalized := HandlerPack{Name: name, Handlers: make(map[string]core.HandlerFactory, len(pack.Handlers))}
	for handlerName, factory := range pack.Handlers {
		handlerName = strings.TrimSpace(handlerName)
		if handlerName == "" {
			return fmt.Errorf("webhooks: handler pack %q contains an unnamed handler", name)
		}
		if factory == nil {
			return fmt.Errorf("webhooks: handler pack %q contains nil factory for %q", name, handlerName)
		}
		normalized.Handlers[handlerName] = factory
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlerPacks[name]; exists {
		return fmt.Errorf("webhooks: handler pack %q already registered", name)
	}
	h.handlerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterPayloadHookPack(pack PayloadHookPack) error {
	if h == nil {
		return fmt.Errorf("webhooks: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("webhooks: payload hook pack name is required")
	}
	if len(pack.Hooks) == 0 {
		return fmt.Errorf("webhooks: payload hook pack %q has no hooks", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.hookPacks[name]; exists {
		return fmt.Errorf("webhooks: payload hook pack %q already registered", name)
	}
	h.hookPacks[name] = PayloadHookPack{
		Name:  name,
		Hooks: append([]core.PayloadHook(nil), pack.Hooks...),
	}
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("webhooks: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("webhooks: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("webhooks: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("webhooks: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyHandlerPacks registers every pack handler, packs and handlers in name
// order. The first name collision aborts the apply.
func (h *ExtensionHooks) ApplyHandlerPacks(registry *core.HandlerRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("webhooks: handler registry is required")
	}
	for _, pack := range h.HandlerPacks() {
		names := make([]string, 0, len(pack.Handlers))
		for name := range pack.Handlers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := registry.Register(name, pack.Handlers[name]); err != nil {
				return fmt.Errorf("webhooks: handler pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) ApplyPayloadHooks(chain *core.PayloadHookChain) error {
	if h == nil {
		return nil
	}
	if chain == nil {
		return fmt.Errorf("webhooks: payload hook chain is required")
	}
	for _, pack := range h.PayloadHookPacks() {
		for _, hook := range pack.Hooks {
			if hook == nil {
				return fmt.Errorf("webhooks: payload hook pack %q contains nil hook", pack.Name)
			}
			if err := chain.Register(hook); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("webhooks: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		names = append(names, name)
		factories[name] = factory
	}
	h.mu.RUnlock()
	sort.Strings(names)

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) HandlerPacks() []HandlerPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.handlerPacks))
	for name := range h.handlerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]HandlerPack, 0, len(names))
	for _, name := range names {
		pack := h.handlerPacks[name]
		handlers := make(map[string]core.HandlerFactory, len(pack.Handlers))
		for handlerName, factory := range pack.Handlers {
			handlers[handlerName] = factory
		}
		out = append(out, HandlerPack{Name: pack.Name, Handlers: handlers})
	}
	return out
}

func (h *ExtensionHooks) PayloadHookPacks() []PayloadHookPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.hookPacks))
	for name := range h.hookPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]PayloadHookPack, 0, len(names))
	for _, name := range names {
		pack := h.hookPacks[name]
		out = append(out, PayloadHookPack{
			Name:  pack.Name,
			Hooks: append([]core.PayloadHook(nil), pack.Hooks...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
