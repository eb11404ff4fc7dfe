package kafkabus

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-webhooks/core"
	"github.com/segmentio/kafka-go"
)

// Writer is satisfied by *kafka.Writer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	writer Writer
}

func NewPublisher(writer Writer) (*Publisher, error) {
	if writer == nil {
		return nil, fmt.Errorf("kafkabus: writer is required")
	}
	return &Publisher{writer: writer}, nil
}

func NewWriter(brokers []string, topic string) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafkabus: at least one broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("kafkabus: topic is required")
	}
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}, nil
}

func (p *Publisher) Name() string { return "kafkabus.publisher" }

// OnMutation keys messages by table and record id so every change to one row
// lands on the same partition in order.
func (p *Publisher) OnMutation(ctx context.Context, event core.MutationEvent) error {
	if p == nil || p.writer == nil {
		return fmt.Errorf("kafkabus: publisher is not configured")
	}
	payload, err := EncodeMutation(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   messageKey(event),
		Value: payload,
	})
}

var (
	_ core.MutationHandler = (*Publisher)(nil)
	_ Writer               = (*kafka.Writer)(nil)
	_ Reader               = (*kafka.Reader)(nil)
)
