package query

import (
	"strings"

	"github.com/goliatone/go-webhooks/core"
)

const (
	TypeListQueueEntries = "webhooks.query.queue.list"
	TypeDescribeActions  = "webhooks.query.actions.describe"
)

type ListQueueEntriesMessage struct {
	Filter core.QueueFilter
}

func (ListQueueEntriesMessage) Type() string { return TypeListQueueEntries }

func (m ListQueueEntriesMessage) Validate() error {
	switch m.Filter.Status {
	case "", core.QueueEntryPending, core.QueueEntryDead:
	default:
		return queryValidationError("status", "status must be pending or dead")
	}
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "limit must not be negative")
	}
	if m.Filter.Offset < 0 {
		return queryValidationError("offset", "offset must not be negative")
	}
	return nil
}

// DescribeActionsMessage lists inbound actions. Name narrows the result to a
// single action, matched case-insensitively.
type DescribeActionsMessage struct {
	Name       string
	ActiveOnly bool
}

func (DescribeActionsMessage) Type() string { return TypeDescribeActions }

func (m DescribeActionsMessage) Validate() error {
	if m.Name != "" && strings.TrimSpace(m.Name) == "" {
		return queryValidationError("name", "name must not be blank")
	}
	return nil
}
