package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"mp4dao/account"
	"mp4dao/journal"
	"mp4dao/ledger"
	"mp4dao/registry"
	"mp4dao/relay"
	"mp4dao/test/actors"
	"mp4dao/test/chaos"
	"mp4dao/test/infra"
	"mp4dao/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 5*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 4, "number of actors per role")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flJournal     = flag.String("journal", "sqlite", "journal backend: memory, sqlite or postgres")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
	flFailRate    = flag.Float64("journal-fail-rate", 0.02, "share of journal appends dropped on purpose")
)

func TestRegistryLedgerConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test skipped in -short mode")
	}
	seed := *flSeed
	t.Logf("seed=%d journal=%s", seed, *flJournal)

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	store, stopChaos := openJournal(t, ctx)
	flaky := chaos.NewFlakyStore(store, 0, seed)

	owner := account.MustParse("0x00000000000000000000000000000000000000f0")
	env := newEnv(t, ctx, owner, flaky, seed)
	w := oracles.World{Registry: env.Registry, Ledger: env.Ledger, Journal: store}
	flaky.SetRate(*flFailRate)

	// run actors
	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	rngFor := func(n int) *rand.Rand { return rand.New(rand.NewSource(seed + int64(n))) }

	for i := 0; i < *flConcurrency; i++ {
		self := env.Accounts[i%len(env.Accounts)]
		base := 10 * (i + 1)
		g.Go(func() error { return actors.Registrar(ctx2, env, self, rngFor(base+1), stop) })
		g.Go(func() error { return actors.Disputer(ctx2, env, env.Accounts[len(env.Accounts)-1-i%len(env.Accounts)], rngFor(base+2), stop) })
		g.Go(func() error { return actors.Mediator(ctx2, env, self, rngFor(base+3), stop) })
		g.Go(func() error { return actors.Trader(ctx2, env, self, rngFor(base+4), stop) })
		g.Go(func() error { return actors.Voter(ctx2, env, self, rngFor(base+5), stop) })
	}
	g.Go(func() error { return actors.Minter(ctx2, env, rngFor(1), stop) })
	g.Go(func() error { return actors.Admin(ctx2, env, rngFor(2), stop) })

	worker := relay.NewWorker(quietLogger(), store, relay.NewLogPublisher(quietLogger()), 0, 50)
	g.Go(func() error { return actors.Relay(ctx2, worker, stop) })
	go stopChaos(ctx2, stop)

	// schedule oracle checks until duration reached
	suite := oracles.NewSuite()
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx2.Done():
			break loop
		case <-ticker.C:
			name, row, err := suite.Run(ctx2, w)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				close(stop)
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				close(stop)
				dumpRecent(t, ctx, store)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v (seed=%d)", err, seed)
		}
	}

	// final pass with writers quiet
	name, row, err := suite.Run(ctx, w)
	if err != nil {
		t.Fatalf("final oracle error: %v", err)
	}
	if name != "" {
		t.Fatalf("Oracle %s failed after shutdown. First row: %s (seed=%d)", name, row, seed)
	}
	if row, err := oracles.JournalMatches(ctx, w, env.Committed.Load()); err != nil || row != "" {
		t.Fatalf("journal mismatch: %s %v (seed=%d)", row, err, seed)
	}
	t.Logf("committed=%d injected_failures=%d works=%d disputes=%d proposals=%d",
		env.Committed.Load(), flaky.Injected(), env.Registry.WorkCount(), env.Registry.DisputeCount(), env.Ledger.ProposalCount())
}

// openJournal returns the store under test and the chaos routine that goes
// with it.
func openJournal(t *testing.T, ctx context.Context) (journal.Store, func(context.Context, <-chan struct{})) {
	t.Helper()
	noChaos := func(context.Context, <-chan struct{}) {}

	switch *flJournal {
	case "memory":
		return journal.NewMemoryStore(), noChaos
	case "sqlite":
		store, err := journal.OpenSQLite(filepath.Join(t.TempDir(), "journal.db"))
		if err != nil {
			t.Fatalf("open sqlite journal: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store, noChaos
	case "postgres":
	default:
		t.Fatalf("unknown journal backend %q", *flJournal)
	}

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	switch {
	case *flDSN != "":
		dsn, usedShared, pgC = *flDSN, true, &infra.PGContainer{}
	case os.Getenv(infra.TestDSNEnv) != "":
		dsn, usedShared, pgC = os.Getenv(infra.TestDSNEnv), true, &infra.PGContainer{}
	case dockerAvailable(ctx):
		pgC, dsn, err = infra.StartPostgres16(ctx, "")
		if err != nil {
			t.Fatalf("start postgres: %v", err)
		}
	default:
		dsn, err = infra.InitLocalDatabase(ctx)
		if err != nil {
			t.Skipf("no postgres available: %v", err)
		}
		pgC = &infra.PGContainer{}
	}
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	t.Cleanup(func() {
		pool.Close()
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	})

	return journal.NewPGStore(pool), func(ctx context.Context, stop <-chan struct{}) {
		chaos.TerminateRandomBackend(ctx, pool, stop)
	}
}

// newEnv builds both engines on one journal and funds every actor so
// mediators can bond and traders have something to move.
func newEnv(t *testing.T, ctx context.Context, owner account.Address, store journal.Store, seed int64) *actors.Env {
	t.Helper()
	cfg := ledger.DefaultConfig(owner)
	cfg.VotingPeriod = 300 * time.Millisecond

	tokens, err := ledger.NewService(cfg)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	tokens.WithJournal(store).WithLogger(quietLogger())

	regCfg := registry.DefaultConfig(owner)
	regCfg.ResponseWindow = time.Second
	reg, err := registry.NewService(regCfg, tokens)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	reg.WithJournal(store).WithLogger(quietLogger())

	env := &actors.Env{Registry: reg, Ledger: tokens, Owner: owner}
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < 12; i++ {
		addr := account.MustParse(fmt.Sprintf("0x%040x", 0xa000+i))
		env.Accounts = append(env.Accounts, addr)
		grant := ledger.Tokens(30_000 + rng.Int63n(20_000))
		if err := tokens.Transfer(ctx, owner, addr, grant); err != nil {
			t.Fatalf("fund %s: %v", addr, err)
		}
		env.Committed.Add(1)
	}
	return env
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

func dumpRecent(t *testing.T, ctx context.Context, store journal.Store) {
	t.Helper()
	var (
		after uint64
		tail  []journal.Fact
	)
	for {
		facts, err := store.List(ctx, after, 1000)
		if err != nil {
			t.Logf("dump journal error: %v", err)
			return
		}
		if len(facts) == 0 {
			break
		}
		tail = append(tail, facts...)
		if len(tail) > 50 {
			tail = tail[len(tail)-50:]
		}
		after = facts[len(facts)-1].Seq
	}
	t.Logf("-- journal (last %d) --", len(tail))
	for _, f := range tail {
		t.Logf("seq=%d type=%s actor=%s key=%s payload=%s", f.Seq, f.Type, f.Actor, f.PartitionKey, f.Payload)
	}
}
