package kafkabus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhooks/core"
	"github.com/segmentio/kafka-go"
)

// Reader is satisfied by *kafka.Reader.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Notifier interface {
	NotifyMutation(ctx context.Context, mutation core.MutationEvent) error
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Consumer struct {
	reader   Reader
	notifier Notifier
	logger   glog.Logger
}

func NewConsumer(reader Reader, notifier Notifier, logger glog.Logger) (*Consumer, error) {
	if reader == nil {
		return nil, fmt.Errorf("kafkabus: reader is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("kafkabus: notifier is required")
	}
	return &Consumer{reader: reader, notifier: notifier, logger: glog.Ensure(logger)}, nil
}

// NewReader builds a consumer group reader for cfg.
func NewReader(cfg ConsumerConfig) (*kafka.Reader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafkabus: at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafkabus: topic is required")
	}
	groupID := strings.TrimSpace(cfg.GroupID)
	if groupID == "" {
		groupID = "go-webhooks"
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	}), nil
}

// Run consumes until ctx ends or the reader is closed. Messages that cannot
// be decoded are logged and committed so they do not block the partition.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil || c.reader == nil {
		return fmt.Errorf("kafkabus: consumer is not configured")
	}
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("kafkabus: fetch: %w", err)
		}
		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafkabus: commit: %w", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	event, err := DecodeMutation(msg.Value)
	if err != nil {
		c.logger.Warn("kafka mutation message skipped",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err.Error(),
		)
		return
	}
	if err := c.notifier.NotifyMutation(ctx, event); err != nil {
		c.logger.Error("kafka mutation notification failed",
			"table", event.Table,
			"record_id", event.RecordID,
			"offset", msg.Offset,
			"error", err.Error(),
		)
	}
}
