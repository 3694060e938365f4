package dispute_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"mp4dao/account"
	"mp4dao/dispute"
	"mp4dao/journal"
	"mp4dao/registry"
)

var (
	owner    = account.MustParse("0x00000000000000000000000000000000000000aa")
	author   = account.MustParse("0x0000000000000000000000000000000000000a01")
	claimant = account.MustParse("0x0000000000000000000000000000000000000c01")
)

// memoryStore mirrors Repository's forward-only rule on applied seq.
type memoryStore struct {
	mu      sync.Mutex
	records map[uint64]dispute.Record
	applied map[uint64]uint64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[uint64]dispute.Record{}, applied: map[uint64]uint64{}}
}

func (m *memoryStore) ApplyCreated(_ context.Context, seq uint64, rec dispute.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; ok {
		return nil
	}
	m.records[rec.ID] = rec
	m.applied[rec.ID] = seq
	return nil
}

func (m *memoryStore) ApplyTransition(_ context.Context, seq, id uint64, status dispute.Status, mediator account.Address, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return dispute.ErrNotFound
	}
	if m.applied[id] >= seq {
		return nil
	}
	rec.Status, rec.Mediator, rec.ResolvedAt = status, mediator, &at
	m.records[id] = rec
	m.applied[id] = seq
	return nil
}

func (m *memoryStore) ApplyReverted(_ context.Context, seq, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if applied, ok := m.applied[id]; ok && applied < seq {
		delete(m.records, id)
		delete(m.applied, id)
	}
	return nil
}

func (m *memoryStore) Get(_ context.Context, id uint64) (dispute.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return dispute.Record{}, dispute.ErrNotFound
	}
	return rec, nil
}

func (m *memoryStore) ListByWork(_ context.Context, workID uint64) ([]dispute.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []dispute.Record
	for _, rec := range m.records {
		if rec.WorkID == workID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// journaledRegistry runs a short dispute history and returns its facts.
func journaledRegistry(t *testing.T) (*registry.Service, []journal.Fact) {
	t.Helper()
	ctx := context.Background()
	facts := journal.NewMemoryStore()

	cfg := registry.DefaultConfig(owner)
	cfg.ResponseWindow = 48 * time.Hour
	reg, err := registry.NewService(cfg, nil)
	require.NoError(t, err)
	reg.WithJournal(facts)

	r, err := reg.RegisterWork(ctx, author, registry.RegisterParams{
		ContentHash: registry.HashContent([]byte("projected")),
		MetadataURI: "ipfs://projected",
		Authors:     []account.Address{author},
		SplitsBps:   []uint32{10_000},
	}, decimal.New(1, 15))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = reg.CreateDispute(ctx, claimant, r.ID, "sampled without licence", "ipfs://evidence", decimal.New(1, 16))
		require.NoError(t, err)
	}
	require.NoError(t, reg.ResolveDispute(ctx, owner, 1, dispute.StatusUnderReview))
	require.NoError(t, reg.ResolveDispute(ctx, owner, 1, dispute.StatusResolved))

	all, err := facts.List(ctx, 0, 0)
	require.NoError(t, err)
	return reg, all
}

func TestServiceProjectsRegistryFacts(t *testing.T) {
	ctx := context.Background()
	reg, facts := journaledRegistry(t)

	svc := dispute.NewService(newMemoryStore())
	for _, f := range facts {
		require.NoError(t, svc.Publish(ctx, f))
	}

	got, err := svc.ListByWork(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)

	want, err := reg.GetDispute(1)
	require.NoError(t, err)
	require.Equal(t, want.Status, got[0].Status)
	require.Equal(t, want.Mediator, got[0].Mediator)
	require.Equal(t, want.Claimant, got[0].Claimant)
	require.NotNil(t, got[0].ResolvedAt)
	require.True(t, want.ResolvedAt.Equal(*got[0].ResolvedAt))
	require.NotNil(t, got[1].ResponseDeadline)
	require.True(t, got[1].ResponseDeadline.Equal(got[1].CreatedAt.Add(48*time.Hour)))
	require.Equal(t, dispute.StatusPending, got[1].Status)
}

func TestServiceIgnoresRedeliveryAndForeignFacts(t *testing.T) {
	ctx := context.Background()
	_, facts := journaledRegistry(t)

	svc := dispute.NewService(newMemoryStore())
	for _, f := range facts {
		require.NoError(t, svc.Publish(ctx, f))
	}
	// Redelivering the whole journal, including the earlier UNDER_REVIEW
	// transition, must not move dispute 1 backwards.
	for _, f := range facts {
		require.NoError(t, svc.Publish(ctx, f))
	}
	rec, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, dispute.StatusResolved, rec.Status)

	_, err = svc.Get(ctx, 99)
	require.ErrorIs(t, err, dispute.ErrNotFound)
}

func TestServiceRejectsTransitionBeforeCreation(t *testing.T) {
	ctx := context.Background()
	_, facts := journaledRegistry(t)

	svc := dispute.NewService(newMemoryStore())
	for _, f := range facts {
		if f.Type == journal.TypeDisputeResolved {
			require.ErrorIs(t, svc.Publish(ctx, f), dispute.ErrNotFound)
			return
		}
	}
	t.Fatal("no resolution fact journaled")
}

// failOnce refuses the first payout and accepts the rest.
type failOnce struct {
	mu     sync.Mutex
	failed bool
}

func (p *failOnce) Pay(context.Context, account.Address, decimal.Decimal, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.failed {
		p.failed = true
		return errors.New("wallet offline")
	}
	return nil
}

func TestServiceDropsRevertedCreation(t *testing.T) {
	ctx := context.Background()
	facts := journal.NewMemoryStore()
	reg, err := registry.NewService(registry.DefaultConfig(owner), nil)
	require.NoError(t, err)
	reg.WithJournal(facts)

	r, err := reg.RegisterWork(ctx, author, registry.RegisterParams{
		ContentHash: registry.HashContent([]byte("refunded")),
		MetadataURI: "ipfs://refunded",
		Authors:     []account.Address{author},
		SplitsBps:   []uint32{10_000},
	}, decimal.New(1, 15))
	require.NoError(t, err)

	reg.WithPayouts(&failOnce{})
	overpaid := decimal.New(2, 16)
	_, err = reg.CreateDispute(ctx, claimant, r.ID, "first attempt", "", overpaid)
	require.Error(t, err)
	second, err := reg.CreateDispute(ctx, claimant, r.ID, "second attempt", "", overpaid)
	require.NoError(t, err)
	require.Equal(t, uint64(1), second.ID, "the reverted attempt must not consume an id")

	all, err := facts.List(ctx, 0, 0)
	require.NoError(t, err)
	var types []string
	for _, f := range all {
		types = append(types, f.Type)
	}
	require.Equal(t, []string{
		journal.TypeWorkRegistered,
		journal.TypeDisputeCreated,
		journal.TypeOperationReverted,
		journal.TypeDisputeCreated,
	}, types)

	svc := dispute.NewService(newMemoryStore())
	for round := 0; round < 2; round++ {
		for _, f := range all {
			require.NoError(t, svc.Publish(ctx, f))
		}
	}
	rec, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "second attempt", rec.Reason)
}
