package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// EventMatcher finds the active event definitions observing a mutation and
// writes the queue entry for the first match.
type EventMatcher struct {
	observer
	definitions DefinitionReader
	queue       QueueStore
	registry    *HandlerRegistry
	now         func() time.Time
}

func NewEventMatcher(
	definitions DefinitionReader,
	queue QueueStore,
	registry *HandlerRegistry,
	logger Logger,
	metrics MetricsRecorder,
) (*EventMatcher, error) {
	if definitions == nil {
		return nil, fmt.Errorf("core: definition reader is required")
	}
	if queue == nil {
		return nil, fmt.Errorf("core: queue store is required")
	}
	if registry == nil {
		registry = NewHandlerRegistry()
	}
	return &EventMatcher{
		observer:    newObserver(logger, metrics),
		definitions: definitions,
		queue:       queue,
		registry:    registry,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Match returns the active events for (table, action). When eventClass is
// set, events declaring the same class come first, followed by events that
// declare no class. Events bound to other classes are dropped.
func (m *EventMatcher) Match(ctx context.Context, table string, action LifecycleAction, eventClass string) ([]EventDefinition, error) {
	if m == nil {
		return nil, fmt.Errorf("core: event matcher is nil")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, fmt.Errorf("core: table is required")
	}
	events, err := m.definitions.ListActiveEvents(ctx, table, action)
	if err != nil {
		return nil, err
	}
	eventClass = strings.TrimSpace(eventClass)

	matched := make([]EventDefinition, 0, len(events))
	for _, event := range events {
		if !event.Active {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(event.Table), table) || event.Action != action {
			continue
		}
		class := strings.TrimSpace(event.EventClass)
		if eventClass != "" && class != "" && !strings.EqualFold(class, eventClass) {
			continue
		}
		matched = append(matched, event)
	}
	if eventClass != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return strings.TrimSpace(matched[i].EventClass) != "" && strings.TrimSpace(matched[j].EventClass) == ""
		})
	}
	return matched, nil
}

// Enqueue persists at most one queue entry for mutation, bound to the first
// matching event. The boolean reports whether an entry was written.
func (m *EventMatcher) Enqueue(ctx context.Context, mutation MutationEvent) (entry QueueEntry, enqueued bool, err error) {
	startedAt := time.Now()
	fields := map[string]any{
		"table":     mutation.Table,
		"action":    string(mutation.Action),
		"record_id": mutation.RecordID,
	}
	defer func() {
		fields["enqueued"] = enqueued
		m.observeOperation(ctx, startedAt, "enqueue", err, fields)
	}()

	if err := mutation.Validate(); err != nil {
		return QueueEntry{}, false, err
	}
	events, err := m.Match(ctx, mutation.Table, mutation.Action, mutation.EventClass)
	if err != nil {
		return QueueEntry{}, false, err
	}
	if len(events) == 0 {
		return QueueEntry{}, false, nil
	}
	event := events[0]
	fields["event_id"] = event.ID

	allowed, err := m.allow(ctx, mutation, event)
	if err != nil {
		return QueueEntry{}, false, err
	}
	if !allowed {
		fields["vetoed_by"] = event.DynamicHandler
		return QueueEntry{}, false, nil
	}

	entry, err = m.queue.Enqueue(ctx, QueueEntry{
		Table:      strings.TrimSpace(mutation.Table),
		RecordID:   strings.TrimSpace(mutation.RecordID),
		EventID:    event.ID,
		Status:     QueueEntryPending,
		Snapshot:   copyValues(mutation.Values),
		EnqueuedAt: m.now(),
	})
	if err != nil {
		return QueueEntry{}, false, fmt.Errorf("core: enqueue %s#%s: %w", mutation.Table, mutation.RecordID, err)
	}
	fields["entry_id"] = entry.ID
	return entry, true, nil
}

func (m *EventMatcher) allow(ctx context.Context, mutation MutationEvent, event EventDefinition) (bool, error) {
	name := strings.TrimSpace(event.DynamicHandler)
	if name == "" {
		return true, nil
	}
	filter, err := ResolveHandler[EnqueueFilter](m.registry, name, "EnqueueFilter")
	if err != nil {
		return false, err
	}
	return invokeHandler(name, func() (bool, error) {
		return filter.AllowEnqueue(ctx, mutation, event)
	})
}

func copyValues(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}
