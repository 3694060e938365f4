// Command registryd hosts the work registry and the MP4 token ledger in one
// process and relays their journaled facts to the configured sink.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"mp4dao/account"
	"mp4dao/auth"
	"mp4dao/config"
	"mp4dao/db"
	"mp4dao/dispute"
	"mp4dao/journal"
	"mp4dao/ledger"
	"mp4dao/logging"
	"mp4dao/migrations"
	"mp4dao/registry"
	"mp4dao/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, os.Stdout)
	if err != nil {
		log.Fatalf("bootstrap registryd: %v", err)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("registryd stopped", "error", err)
		os.Exit(1)
	}
}

type app struct {
	logger   *slog.Logger
	store    journal.Store
	ledger   *ledger.Service
	registry *registry.Service
	auth     *auth.Service
	disputes *dispute.Service
	worker   *relay.Worker
	closers  []func() error
}

func build(ctx context.Context, cfg config.Config, out io.Writer) (a *app, err error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, out)
	if err != nil {
		return nil, err
	}
	a = &app{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var pool *pgxpool.Pool
	switch cfg.JournalDriver {
	case config.JournalPostgres:
		pool, err = db.NewPool(ctx, cfg.JournalDSN, db.PoolOptions{MaxConns: 10})
		if err != nil {
			return a, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err = migrations.Apply(ctx, pool); err != nil {
			return a, err
		}
		a.store = journal.NewPGStore(pool)
	case config.JournalSQLite:
		store, err := journal.OpenSQLite(cfg.JournalDSN)
		if err != nil {
			return a, err
		}
		a.closers = append(a.closers, store.Close)
		a.store = store
	default:
		a.store = journal.NewMemoryStore()
	}

	ledgerCfg, err := cfg.LedgerConfig()
	if err != nil {
		return a, err
	}
	a.ledger, err = ledger.NewService(ledgerCfg)
	if err != nil {
		return a, err
	}
	a.ledger.WithJournal(a.store).WithLogger(logger.With("service", "ledger"))

	a.registry, err = registry.NewService(cfg.RegistryConfig(), a.ledger)
	if err != nil {
		return a, err
	}
	a.registry.
		WithJournal(a.store).
		WithLogger(logger.With("service", "registry")).
		WithPayouts(logPayouts{logger: logger})

	// Both engines share the journal, so one read feeds both replays.
	facts, err := journal.Committed(ctx, a.store)
	if err != nil {
		return a, err
	}
	if err = a.ledger.Restore(facts); err != nil {
		return a, err
	}
	if err = a.registry.Restore(facts); err != nil {
		return a, err
	}

	if cfg.JWTSecret != "" {
		var repo auth.Repository
		if pool != nil {
			repo = auth.NewRepository(pool)
		}
		a.auth = auth.NewService(repo, cfg.JWTSecret, cfg.TokenTTL)
	}

	pub, err := a.publisher(ctx, cfg)
	if err != nil {
		return a, err
	}
	if pool != nil {
		// Disputes get a queryable read model next to the journal.
		a.disputes = dispute.NewService(dispute.NewRepository(pool))
		pub = relay.Fanout(pub, a.disputes)
	}
	a.worker = relay.NewWorker(logger.With("service", "relay"), a.store, pub, cfg.RelayInterval, cfg.RelayBatchSize)

	logger.Info("registryd ready",
		"owner", cfg.Owner.String(),
		"journal", cfg.JournalDriver,
		"relay_sink", cfg.RelaySink,
		"operator_login", pool != nil && a.auth != nil,
		"dispute_projection", a.disputes != nil,
	)
	return a, nil
}

func (a *app) publisher(ctx context.Context, cfg config.Config) (relay.Publisher, error) {
	switch cfg.RelaySink {
	case config.SinkKafka:
		kp, err := relay.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, kp.Close)
		return kp, nil
	case config.SinkRedis:
		client, err := relay.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return relay.NewRedisStreamPublisher(client, cfg.RedisStream, cfg.RedisMaxLen), nil
	default:
		return relay.NewLogPublisher(a.logger.With("service", "facts")), nil
	}
}

// Run drives the relay until ctx is cancelled.
func (a *app) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.worker.Run(ctx) })
	return g.Wait()
}

// Close releases sinks and stores in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// logPayouts records ETH the registry owes; settlement happens on chain.
type logPayouts struct {
	logger *slog.Logger
}

func (p logPayouts) Pay(ctx context.Context, to account.Address, amount decimal.Decimal, memo string) error {
	if to.IsZero() {
		return fmt.Errorf("registryd: payout to zero address")
	}
	p.logger.InfoContext(ctx, "payout owed",
		"module", "registryd",
		"to", to.String(),
		"amount_wei", amount.String(),
		"memo", memo,
	)
	return nil
}
