package kafkabus

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-webhooks/core"
)

// MutationMessage is the JSON wire form of a mutation notification.
type MutationMessage struct {
	Table      string         `json:"table"`
	TableID    string         `json:"table_id,omitempty"`
	Action     string         `json:"action"`
	RecordID   string         `json:"record_id"`
	EventClass string         `json:"event_class,omitempty"`
	Values     map[string]any `json:"values,omitempty"`
	OccurredAt time.Time      `json:"occurred_at,omitempty"`
}

func EncodeMutation(event core.MutationEvent) ([]byte, error) {
	return json.Marshal(MutationMessage{
		Table:      event.Table,
		TableID:    event.TableID,
		Action:     string(event.Action),
		RecordID:   event.RecordID,
		EventClass: event.EventClass,
		Values:     event.Values,
		OccurredAt: event.OccurredAt,
	})
}

func DecodeMutation(payload []byte) (core.MutationEvent, error) {
	var msg MutationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return core.MutationEvent{}, fmt.Errorf("kafkabus: decode mutation: %w", err)
	}
	action, err := core.ParseLifecycleAction(msg.Action)
	if err != nil {
		return core.MutationEvent{}, err
	}
	event := core.MutationEvent{
		Table:      strings.TrimSpace(msg.Table),
		TableID:    strings.TrimSpace(msg.TableID),
		Action:     action,
		RecordID:   strings.TrimSpace(msg.RecordID),
		EventClass: strings.TrimSpace(msg.EventClass),
		Values:     msg.Values,
		OccurredAt: msg.OccurredAt,
	}
	if err := event.Validate(); err != nil {
		return core.MutationEvent{}, err
	}
	return event, nil
}

func messageKey(event core.MutationEvent) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(event.Table)) + ":" + strings.TrimSpace(event.RecordID))
}
