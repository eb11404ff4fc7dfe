// Package gocommand puts the webhook commands and queries on a go-command
// bus. Registered handlers are also subscribed to the process wide
// dispatcher, so Dispatch and Query reach them by message type.
package gocommand

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	webhooks "github.com/goliatone/go-webhooks"
)

// ValidateMessageContract requires a non empty Type() and runs Validate()
// when the message has one.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type Bus struct {
	registry *command.Registry

	mu            sync.Mutex
	subscriptions []commanddispatcher.Subscription
}

func NewBus(registry *command.Registry) *Bus {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &Bus{registry: registry}
}

func (b *Bus) Registry() *command.Registry {
	if b == nil {
		return nil
	}
	return b.registry
}

func (b *Bus) AddResolver(key string, resolver command.Resolver) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: bus is not configured")
	}
	return b.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// MirrorToQueue copies every registered command into a go-job queue
// registry when the bus is initialized, so drains can run as queued jobs.
func (b *Bus) MirrorToQueue(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return b.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (b *Bus) HasResolver(key string) bool {
	return b != nil && b.registry != nil && b.registry.HasResolver(strings.TrimSpace(key))
}

func (b *Bus) Initialize() error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: bus is not configured")
	}
	return b.registry.Initialize()
}

// Close unsubscribes everything the bus subscribed.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	subscriptions := b.subscriptions
	b.subscriptions = nil
	b.mu.Unlock()
	for _, subscription := range subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

func (b *Bus) Subscriptions() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions)
}

func (b *Bus) track(subscription commanddispatcher.Subscription) {
	b.mu.Lock()
	b.subscriptions = append(b.subscriptions, subscription)
	b.mu.Unlock()
}

// RegisterCommand subscribes cmd and records it in the registry. The
// subscription is released again when registration fails.
func RegisterCommand[T any](b *Bus, cmd command.Commander[T], runnerOpts ...runner.Option) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: bus is not configured")
	}
	if cmd == nil {
		return fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := b.registry.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return err
	}
	b.track(subscription)
	return nil
}

func RegisterQuery[T any, R any](b *Bus, qry command.Querier[T, R], runnerOpts ...runner.Option) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: bus is not configured")
	}
	if qry == nil {
		return fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := b.registry.RegisterCommand(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return err
	}
	b.track(subscription)
	return nil
}

// RegisterFacade puts every facade command and query on the bus. On failure
// nothing stays subscribed.
func (b *Bus) RegisterFacade(facade *webhooks.Facade, runnerOpts ...runner.Option) error {
	if facade == nil {
		return fmt.Errorf("gocommand: facade is required")
	}
	commands := facade.Commands()
	queries := facade.Queries()
	steps := []func() error{
		func() error { return RegisterCommand(b, commands.DrainQueue, runnerOpts...) },
		func() error { return RegisterCommand(b, commands.EnqueueMutation, runnerOpts...) },
		func() error { return RegisterCommand(b, commands.RequeueDead, runnerOpts...) },
		func() error { return RegisterQuery(b, queries.ListQueueEntries, runnerOpts...) },
		func() error { return RegisterQuery(b, queries.DescribeActions, runnerOpts...) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			b.Close()
			return err
		}
	}
	return nil
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}
