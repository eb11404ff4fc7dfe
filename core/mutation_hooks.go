package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MutationHookCoordinator fans a mutation out to registered handlers in
// registration order. It is what the host persistence layer calls from its
// commit hook.
type MutationHookCoordinator struct {
	mu       sync.RWMutex
	handlers []MutationHandler
}

func NewMutationHookCoordinator(handlers ...MutationHandler) *MutationHookCoordinator {
	coordinator := &MutationHookCoordinator{handlers: make([]MutationHandler, 0, len(handlers))}
	for _, handler := range handlers {
		coordinator.Register(handler)
	}
	return coordinator
}

func (c *MutationHookCoordinator) Register(handler MutationHandler) {
	if c == nil || handler == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, handler)
}

// Publish runs every handler even when one fails. Failures and panics are
// aggregated for observability; they never imply a rollback of the host
// mutation.
func (c *MutationHookCoordinator) Publish(ctx context.Context, event MutationEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	var hookErr error
	for _, handler := range c.snapshot() {
		if err := runMutationHandler(ctx, handler, event); err != nil {
			hookErr = errors.Join(hookErr, fmt.Errorf("mutation handler %q failed: %w", mutationHandlerName(handler), err))
		}
	}
	return hookErr
}

func (c *MutationHookCoordinator) snapshot() []MutationHandler {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]MutationHandler, len(c.handlers))
	copy(out, c.handlers)
	return out
}

func runMutationHandler(ctx context.Context, handler MutationHandler, event MutationEvent) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return handler.OnMutation(ctx, event)
}

func mutationHandlerName(handler MutationHandler) string {
	if handler == nil {
		return "unknown"
	}
	name := strings.TrimSpace(handler.Name())
	if name == "" {
		return "unnamed"
	}
	return name
}

// EnqueueSubscriber is the mutation handler that feeds the dispatch queue.
// It never returns an error: enqueue failures are logged and swallowed so
// the host unit of work is not aborted.
type EnqueueSubscriber struct {
	observer
	matcher *EventMatcher
}

func NewEnqueueSubscriber(matcher *EventMatcher, logger Logger) *EnqueueSubscriber {
	return &EnqueueSubscriber{observer: newObserver(logger, nil), matcher: matcher}
}

func (s *EnqueueSubscriber) Name() string {
	return "webhooks.enqueue"
}

func (s *EnqueueSubscriber) OnMutation(ctx context.Context, event MutationEvent) (err error) {
	if s == nil || s.matcher == nil {
		return nil
	}
	fields := map[string]any{
		"table":     event.Table,
		"table_id":  event.TableID,
		"action":    string(event.Action),
		"record_id": event.RecordID,
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			fields["panic"] = fmt.Sprint(recovered)
			s.logError(ctx, "webhook enqueue panicked", fields)
			err = nil
		}
	}()
	if _, _, enqueueErr := s.matcher.Enqueue(ctx, event); enqueueErr != nil {
		fields["error"] = enqueueErr.Error()
		s.logError(ctx, "webhook enqueue failed", fields)
	}
	return nil
}

var _ MutationHandler = (*EnqueueSubscriber)(nil)
