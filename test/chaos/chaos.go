package chaos

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mp4dao/journal"
)

var (
	// ErrInjected is returned by FlakyStore when it drops an append on purpose.
	ErrInjected = errors.New("chaos: injected journal failure")
	// ErrBackend wraps a genuine failure of the store behind FlakyStore.
	ErrBackend = errors.New("chaos: journal backend failure")
)

// FlakyStore fails a random share of appends so the engines must roll back
// operations whose fact never reached the journal.
type FlakyStore struct {
	journal.Store

	mu       sync.Mutex
	rng      *rand.Rand
	rate     float64
	injected atomic.Int64
}

func NewFlakyStore(inner journal.Store, rate float64, seed int64) *FlakyStore {
	return &FlakyStore{Store: inner, rng: rand.New(rand.NewSource(seed)), rate: rate}
}

// SetRate changes the failure share; 0 disables injection.
func (f *FlakyStore) SetRate(rate float64) {
	f.mu.Lock()
	f.rate = rate
	f.mu.Unlock()
}

func (f *FlakyStore) Append(ctx context.Context, fact journal.Fact) (journal.Fact, error) {
	f.mu.Lock()
	drop := f.rate > 0 && f.rng.Float64() < f.rate
	f.mu.Unlock()
	if drop {
		f.injected.Add(1)
		return journal.Fact{}, ErrInjected
	}
	out, err := f.Store.Append(ctx, fact)
	if err != nil {
		return journal.Fact{}, fmt.Errorf("%w: %w", ErrBackend, err)
	}
	return out, nil
}

// Injected reports how many appends were dropped.
func (f *FlakyStore) Injected() int64 { return f.injected.Load() }

// TerminateRandomBackend kills a random backend of the journal database now
// and then. In-flight appends on that connection fail and must roll back.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(5) == 0 {
				_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = current_database() AND pid <> pg_backend_pid() ORDER BY random() LIMIT 1`)
			}
		}
	}
}
