package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// PayloadHookChain runs registered hooks in registration order over a built
// payload before it is serialized. Each hook receives the previous hook's
// output.
type PayloadHookChain struct {
	mu    sync.RWMutex
	hooks []PayloadHook
}

func NewPayloadHookChain(hooks ...PayloadHook) *PayloadHookChain {
	chain := &PayloadHookChain{hooks: make([]PayloadHook, 0, len(hooks))}
	for _, hook := range hooks {
		_ = chain.Register(hook)
	}
	return chain
}

func (c *PayloadHookChain) Register(hook PayloadHook) error {
	if c == nil {
		return fmt.Errorf("core: payload hook chain is nil")
	}
	if hook == nil {
		return fmt.Errorf("core: payload hook is required")
	}
	name := strings.TrimSpace(hook.Name())
	if name == "" {
		return fmt.Errorf("core: payload hook name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.hooks {
		if strings.EqualFold(strings.TrimSpace(existing.Name()), name) {
			return fmt.Errorf("core: payload hook %q already registered", name)
		}
	}
	c.hooks = append(c.hooks, hook)
	return nil
}

func (c *PayloadHookChain) Names() []string {
	hooks := c.snapshot()
	names := make([]string, 0, len(hooks))
	for _, hook := range hooks {
		names = append(names, hook.Name())
	}
	return names
}

// Apply stops at the first failing hook. A failed hook aborts the send, so no
// partially processed payload leaves the process.
func (c *PayloadHookChain) Apply(ctx context.Context, webhook WebhookDefinition, record Record, payload any) (any, error) {
	current := payload
	for _, hook := range c.snapshot() {
		next, err := runPayloadHook(ctx, hook, webhook, record, current)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

func (c *PayloadHookChain) snapshot() []PayloadHook {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PayloadHook, len(c.hooks))
	copy(out, c.hooks)
	return out
}

func runPayloadHook(
	ctx context.Context,
	hook PayloadHook,
	webhook WebhookDefinition,
	record Record,
	payload any,
) (result any, err error) {
	name := strings.TrimSpace(hook.Name())
	defer func() {
		if recovered := recover(); recovered != nil {
			result = nil
			err = invocationError(name, fmt.Errorf("panic: %v", recovered))
		}
	}()
	result, err = hook.Process(ctx, webhook, record, payload)
	if err != nil {
		return nil, invocationError(name, err)
	}
	return result, nil
}
