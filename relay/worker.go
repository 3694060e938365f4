package relay

import (
	"context"
	"log/slog"
	"time"

	"mp4dao/journal"
)

// Worker pulls unpublished facts from the journal and publishes them.
type Worker struct {
	logger    *slog.Logger
	store     journal.Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewWorker constructs the publish loop with sane defaults.
func NewWorker(logger *slog.Logger, store journal.Store, publisher Publisher, interval time.Duration, batchSize int) *Worker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Worker{
		logger:    logger,
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Run executes the periodic publish loop until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "relay iteration failed",
				"module", "relay.worker",
				"operation", "relay_process_once",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce publishes one batch in journal order. The batch stops at the
// first failed fact, which is marked and retried on the next pass; nothing
// behind it is published out of order.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	facts, err := w.store.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}

	published, failed := 0, 0
	for _, fact := range facts {
		now := w.now().UTC()
		if err := w.publisher.Publish(ctx, fact); err != nil {
			failed++
			w.logger.WarnContext(ctx, "fact publish failed; retry scheduled",
				"module", "relay.worker",
				"operation", "publish_fact",
				"outcome", "failure",
				"fact_id", fact.ID.String(),
				"fact_type", fact.Type,
				"seq", fact.Seq,
				"error", err,
			)
			_ = w.store.MarkFailed(ctx, fact.ID, err.Error(), now)
			break
		}
		if err := w.store.MarkPublished(ctx, fact.ID, now); err != nil {
			return published, err
		}
		published++
	}
	if len(facts) > 0 {
		w.logger.InfoContext(ctx, "relay batch processed",
			"module", "relay.worker",
			"operation", "relay_process_once",
			"outcome", "success",
			"batch_size", len(facts),
			"published_count", published,
			"failed_count", failed,
		)
	}
	return published, nil
}
