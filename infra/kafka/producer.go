package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	exitwal "github.com/gnuser/red-envelope-server/infra/wal/exit"
)

// Producer publishes outbox messages with kafka-go. Each message kind
// goes to its own topic.
type Producer struct {
	writer *kafka.Writer
	prefix string
}

func NewProducer(brokers []string, topicPrefix string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		prefix: topicPrefix,
	}
}

func (p *Producer) Publish(ctx context.Context, m exitwal.Message) error {
	body, err := m.Body()
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: Topic(p.prefix, m.Kind),
		Key:   []byte(m.Key),
		Value: body,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Topic names the topic of a message kind, e.g. "engine.deals".
func Topic(prefix string, kind exitwal.Kind) string {
	if prefix == "" {
		return string(kind)
	}
	return prefix + "." + string(kind)
}
