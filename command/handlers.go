package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhooks/core"
)

type QueueService interface {
	Enqueue(ctx context.Context, mutation core.MutationEvent) (core.QueueEntry, bool, error)
	Drain(ctx context.Context) (core.DrainStats, error)
	RequeueDead(ctx context.Context) (int, error)
}

type DrainQueueCommand struct {
	service QueueService
}

func NewDrainQueueCommand(service QueueService) *DrainQueueCommand {
	return &DrainQueueCommand{service: service}
}

func (c *DrainQueueCommand) Execute(ctx context.Context, _ DrainQueueMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: drain service is required")
	}
	stats, err := c.service.Drain(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, stats)
	return nil
}

type EnqueueMutationCommand struct {
	service QueueService
}

func NewEnqueueMutationCommand(service QueueService) *EnqueueMutationCommand {
	return &EnqueueMutationCommand{service: service}
}

func (c *EnqueueMutationCommand) Execute(ctx context.Context, msg EnqueueMutationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: enqueue service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	entry, enqueued, err := c.service.Enqueue(ctx, msg.Mutation)
	if err != nil {
		return err
	}
	storeResult(ctx, EnqueueResult{Entry: entry, Enqueued: enqueued})
	return nil
}

type RequeueDeadCommand struct {
	service QueueService
}

func NewRequeueDeadCommand(service QueueService) *RequeueDeadCommand {
	return &RequeueDeadCommand{service: service}
}

func (c *RequeueDeadCommand) Execute(ctx context.Context, _ RequeueDeadMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: requeue service is required")
	}
	count, err := c.service.RequeueDead(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, RequeueResult{Count: count})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
