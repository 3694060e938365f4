package relay

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"mp4dao/journal"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each fact to a topic named after its source
// ("<prefix>.registry", "<prefix>.ledger"), keyed by partition key so facts
// about one work or account stay ordered.
type KafkaPublisher struct {
	writer      messageWriter
	topicPrefix string
}

func NewKafkaPublisher(brokers []string, topicPrefix string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("relay: kafka publisher requires at least one broker")
	}
	if topicPrefix == "" {
		topicPrefix = "mp4dao"
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topicPrefix: topicPrefix,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, fact journal.Fact) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topicPrefix + "." + fact.Source,
		Key:   []byte(fact.PartitionKey),
		Value: fact.Payload,
		Time:  fact.OccurredAt,
		Headers: []kafka.Header{
			{Key: "fact_id", Value: []byte(fact.ID.String())},
			{Key: "fact_type", Value: []byte(fact.Type)},
			{Key: "actor", Value: []byte(fact.Actor.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("relay: kafka write %s: %w", fact.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
