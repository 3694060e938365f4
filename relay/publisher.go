// Package relay delivers journaled facts to external indexers. The core
// operations never wait on it: facts are already durable in the journal and
// the relay drains them asynchronously, at least once.
package relay

import (
	"context"
	"log/slog"

	"mp4dao/journal"
)

// Publisher delivers one fact downstream.
type Publisher interface {
	Publish(ctx context.Context, fact journal.Fact) error
}

// LogPublisher writes facts to a structured log. It is the sink for
// deployments without a broker.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, fact journal.Fact) error {
	p.logger.InfoContext(ctx, "fact published",
		"module", "relay.log_publisher",
		"fact_id", fact.ID.String(),
		"seq", fact.Seq,
		"fact_type", fact.Type,
		"source", fact.Source,
		"partition_key", fact.PartitionKey,
		"payload", string(fact.Payload),
	)
	return nil
}

// Fanout delivers each fact to every publisher in order and stops at the
// first failure. The fact is then retried for all of them, so every
// publisher must tolerate redelivery.
func Fanout(pubs ...Publisher) Publisher {
	return fanout(pubs)
}

type fanout []Publisher

func (f fanout) Publish(ctx context.Context, fact journal.Fact) error {
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, fact); err != nil {
			return err
		}
	}
	return nil
}
