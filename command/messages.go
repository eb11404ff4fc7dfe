package command

import (
	"strings"

	"github.com/goliatone/go-webhooks/core"
)

const (
	TypeDrainQueue      = "webhooks.command.queue.drain"
	TypeEnqueueMutation = "webhooks.command.mutation.enqueue"
	TypeRequeueDead     = "webhooks.command.queue.requeue_dead"
)

// DrainQueueMessage runs one sweep over the pending queue.
type DrainQueueMessage struct {
	Reason string
}

func (DrainQueueMessage) Type() string { return TypeDrainQueue }

func (DrainQueueMessage) Validate() error { return nil }

type EnqueueMutationMessage struct {
	Mutation core.MutationEvent
}

func (EnqueueMutationMessage) Type() string { return TypeEnqueueMutation }

func (m EnqueueMutationMessage) Validate() error {
	if strings.TrimSpace(m.Mutation.Table) == "" {
		return commandValidationError("table", "table is required")
	}
	if strings.TrimSpace(m.Mutation.RecordID) == "" {
		return commandValidationError("record_id", "record id is required")
	}
	if err := m.Mutation.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid mutation")
	}
	return nil
}

type RequeueDeadMessage struct{}

func (RequeueDeadMessage) Type() string { return TypeRequeueDead }

func (RequeueDeadMessage) Validate() error { return nil }

// EnqueueResult reports whether the mutation matched an event.
type EnqueueResult struct {
	Entry    core.QueueEntry
	Enqueued bool
}

type RequeueResult struct {
	Count int
}
