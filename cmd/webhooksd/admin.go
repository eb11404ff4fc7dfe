package main

import (
	"context"
	"fmt"

	"github.com/goliatone/go-command"
	webhooks "github.com/goliatone/go-webhooks"
	"github.com/goliatone/go-webhooks/adapters/gocommand"
	webhookscommand "github.com/goliatone/go-webhooks/command"
	"github.com/goliatone/go-webhooks/core"
)

func isAdminCommand(name string) bool {
	return name == "drain" || name == "requeue-dead"
}

// runAdminCommand runs a one shot queue operation through the command bus
// and exits without serving HTTP.
func runAdminCommand(ctx context.Context, service *webhooks.Service, name string, logger core.Logger) error {
	facade, err := webhooks.NewFacade(service)
	if err != nil {
		return err
	}
	bus := gocommand.NewBus(nil)
	if err := bus.RegisterFacade(facade); err != nil {
		return err
	}
	defer bus.Close()

	switch name {
	case "drain":
		collector := command.NewResult[core.DrainStats]()
		if err := gocommand.Dispatch(command.ContextWithResult(ctx, collector),
			webhookscommand.DrainQueueMessage{Reason: "cli"}); err != nil {
			return err
		}
		stats, _ := collector.Load()
		logger.Info("drain finished",
			"scanned", stats.Scanned,
			"delivered", stats.Delivered,
			"failed", stats.Failed,
			"dead_lettered", stats.DeadLettered,
			"skipped", stats.Skipped,
		)
	case "requeue-dead":
		collector := command.NewResult[webhookscommand.RequeueResult]()
		if err := gocommand.Dispatch(command.ContextWithResult(ctx, collector),
			webhookscommand.RequeueDeadMessage{}); err != nil {
			return err
		}
		result, _ := collector.Load()
		logger.Info("dead entries requeued", "count", result.Count)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
	return nil
}
