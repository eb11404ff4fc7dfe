package core

import (
	"context"
	"errors"
	"testing"
)

func TestEventMatcher_NoActiveEventCreatesNoEntry(t *testing.T) {
	definitions, _, _ := orderFixture()
	inactive := definitions.events["evt_orders"]
	inactive.Active = false
	definitions.events["evt_orders"] = inactive
	queue := newMemoryQueueStore()

	matcher, err := NewEventMatcher(definitions, queue, nil, nil, nil)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	_, enqueued, err := matcher.Enqueue(context.Background(), MutationEvent{Table: "orders", Action: ActionUpdate, RecordID: "42"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueued || queue.count() != 0 {
		t.Fatalf("expected no queue entry, got %d", queue.count())
	}

	_, enqueued, err = matcher.Enqueue(context.Background(), MutationEvent{Table: "orders", Action: ActionDelete, RecordID: "42"})
	if err != nil || enqueued {
		t.Fatalf("expected delete to match nothing, enqueued=%v err=%v", enqueued, err)
	}
}

func TestEventMatcher_EnqueuesOneEntryForFirstMatch(t *testing.T) {
	definitions, _, _ := orderFixture()
	definitions.events["evt_zz"] = EventDefinition{ID: "evt_zz", Table: "orders", Action: ActionUpdate, Active: true}
	queue := newMemoryQueueStore()
	matcher, _ := NewEventMatcher(definitions, queue, nil, nil, nil)

	entry, enqueued, err := matcher.Enqueue(context.Background(), MutationEvent{
		Table:    "orders",
		Action:   ActionUpdate,
		RecordID: "42",
		Values:   map[string]any{"status": "shipped"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !enqueued || queue.count() != 1 {
		t.Fatalf("expected exactly one entry, got %d", queue.count())
	}
	if entry.EventID != "evt_orders" || entry.RecordID != "42" || entry.Table != "orders" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Snapshot["status"] != "shipped" {
		t.Fatalf("expected mutation snapshot stored, got %#v", entry.Snapshot)
	}
}

func TestEventMatcher_DynamicHandlerVeto(t *testing.T) {
	definitions, _, _ := orderFixture()
	event := definitions.events["evt_orders"]
	event.DynamicHandler = "only-shipped"
	definitions.events[event.ID] = event

	registry := NewHandlerRegistry()
	_ = registry.RegisterInstance("only-shipped", enqueueFilterFunc(func(_ context.Context, mutation MutationEvent, _ EventDefinition) (bool, error) {
		return mutation.Values["status"] == "shipped", nil
	}))
	queue := newMemoryQueueStore()
	matcher, _ := NewEventMatcher(definitions, queue, registry, nil, nil)

	_, enqueued, err := matcher.Enqueue(context.Background(), MutationEvent{Table: "orders", Action: ActionUpdate, RecordID: "1", Values: map[string]any{"status": "draft"}})
	if err != nil || enqueued {
		t.Fatalf("expected veto, enqueued=%v err=%v", enqueued, err)
	}
	_, enqueued, err = matcher.Enqueue(context.Background(), MutationEvent{Table: "orders", Action: ActionUpdate, RecordID: "2", Values: map[string]any{"status": "shipped"}})
	if err != nil || !enqueued {
		t.Fatalf("expected enqueue, enqueued=%v err=%v", enqueued, err)
	}
	if queue.count() != 1 {
		t.Fatalf("expected one entry, got %d", queue.count())
	}
}

func TestEventMatcher_DynamicHandlerFailure(t *testing.T) {
	definitions, _, _ := orderFixture()
	event := definitions.events["evt_orders"]
	event.DynamicHandler = "broken"
	definitions.events[event.ID] = event
	registry := NewHandlerRegistry()
	_ = registry.RegisterInstance("broken", enqueueFilterFunc(func(context.Context, MutationEvent, EventDefinition) (bool, error) {
		return false, errors.New("lookup failed")
	}))
	matcher, _ := NewEventMatcher(definitions, newMemoryQueueStore(), registry, nil, nil)

	_, _, err := matcher.Enqueue(context.Background(), MutationEvent{Table: "orders", Action: ActionUpdate, RecordID: "1"})
	if !IsErrorKind(err, ErrorHandlerInvocation) {
		t.Fatalf("expected invocation failure, got %v", err)
	}
}

func TestEventMatcher_EventClassNarrowing(t *testing.T) {
	definitions := newMemoryDefinitionStore()
	definitions.events["evt_a"] = EventDefinition{ID: "evt_a", Table: "orders", Action: ActionCreate, Active: true}
	definitions.events["evt_b"] = EventDefinition{ID: "evt_b", Table: "orders", Action: ActionCreate, EventClass: "sales", Active: true}
	definitions.events["evt_c"] = EventDefinition{ID: "evt_c", Table: "orders", Action: ActionCreate, EventClass: "purchase", Active: true}
	matcher, _ := NewEventMatcher(definitions, newMemoryQueueStore(), nil, nil, nil)

	events, err := matcher.Match(context.Background(), "orders", ActionCreate, "sales")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(events) != 2 || events[0].ID != "evt_b" || events[1].ID != "evt_a" {
		t.Fatalf("expected class match first then classless, got %+v", events)
	}

	events, _ = matcher.Match(context.Background(), "orders", ActionCreate, "")
	if len(events) != 3 {
		t.Fatalf("expected all events without class, got %d", len(events))
	}
}

func TestEventMatcher_RejectsInvalidMutation(t *testing.T) {
	definitions, _, _ := orderFixture()
	matcher, _ := NewEventMatcher(definitions, newMemoryQueueStore(), nil, nil, nil)
	if _, _, err := matcher.Enqueue(context.Background(), MutationEvent{Table: "orders", Action: "archive", RecordID: "1"}); err == nil {
		t.Fatalf("expected invalid action error")
	}
	if _, _, err := matcher.Enqueue(context.Background(), MutationEvent{Table: "orders", Action: ActionCreate}); err == nil {
		t.Fatalf("expected missing record id error")
	}
}
