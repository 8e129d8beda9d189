package kafka

import (
	"context"

	"github.com/IBM/sarama"

	exitwal "github.com/gnuser/red-envelope-server/infra/wal/exit"
)

// SyncProducer publishes outbox messages through a sarama sync producer.
type SyncProducer struct {
	producer sarama.SyncProducer
	prefix   string
}

func NewSyncProducer(brokers []string, topicPrefix string) (*SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return newSyncProducer(producer, topicPrefix), nil
}

func newSyncProducer(p sarama.SyncProducer, topicPrefix string) *SyncProducer {
	return &SyncProducer{producer: p, prefix: topicPrefix}
}

func (p *SyncProducer) Publish(_ context.Context, m exitwal.Message) error {
	body, err := m.Body()
	if err != nil {
		return err
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: Topic(p.prefix, m.Kind),
		Key:   sarama.StringEncoder(m.Key),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message-id"), Value: []byte(m.ID)},
		},
	})
	return err
}

func (p *SyncProducer) Close() error {
	return p.producer.Close()
}
