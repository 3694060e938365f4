package journal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"mp4dao/account"
)

var actor = account.MustParse("0x00000000000000000000000000000000000000a1")

func mustFact(t *testing.T, typ string, n int, at time.Time) Fact {
	t.Helper()
	f, err := NewFact(SourceRegistry, typ, actor, "work-1", map[string]any{"n": n}, at)
	require.NoError(t, err)
	return f
}

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2025, 4, 1, 8, 30, 0, 123456000, time.UTC)

	var appended []Fact
	for i, typ := range []string{TypeWorkRegistered, TypeDisputeCreated, TypeDisputeResolved} {
		f, err := store.Append(ctx, mustFact(t, typ, i, at.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		appended = append(appended, f)
	}
	require.Less(t, appended[0].Seq, appended[1].Seq)
	require.Less(t, appended[1].Seq, appended[2].Seq)

	all, err := store.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, appended[0].ID, all[0].ID)
	require.Equal(t, TypeWorkRegistered, all[0].Type)
	require.Equal(t, SourceRegistry, all[0].Source)
	require.Equal(t, actor, all[0].Actor)
	require.Equal(t, "work-1", all[0].PartitionKey)
	require.True(t, at.Equal(all[0].OccurredAt), "got %s", all[0].OccurredAt)

	var payload map[string]int
	require.NoError(t, json.Unmarshal(all[2].Payload, &payload))
	require.Equal(t, 2, payload["n"])

	tail, err := store.List(ctx, appended[0].Seq, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, appended[1].ID, tail[0].ID)

	require.NoError(t, store.MarkPublished(ctx, appended[0].ID, at))
	require.NoError(t, store.MarkFailed(ctx, appended[1].ID, "broker down", at))

	pending, err := store.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, appended[1].ID, pending[0].ID)
	require.Equal(t, appended[2].ID, pending[1].ID)

	require.ErrorIs(t, store.MarkPublished(ctx, uuid.New(), at), ErrFactNotFound)
	require.ErrorIs(t, store.MarkFailed(ctx, uuid.New(), "x", at), ErrFactNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/journal.db"
	ctx := context.Background()

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	f, err := store.Append(ctx, mustFact(t, TypeTransfer, 1, time.Now()))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	all, err := reopened.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, f.ID, all[0].ID)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite(" ")
	require.Error(t, err)
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().Append(ctx, mustFact(t, TypeTransfer, 1, time.Now()))
	require.ErrorIs(t, err, context.Canceled)
}

func TestCommittedDropsReversedFacts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	at := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)

	var kept []Fact
	for i, typ := range []string{TypeWorkRegistered, TypeDisputeCreated, TypeDisputeResolved} {
		f, err := store.Append(ctx, mustFact(t, typ, i, at))
		require.NoError(t, err)
		kept = append(kept, f)
	}
	rev, err := NewReversal(kept[1], "wallet offline", at)
	require.NoError(t, err)
	require.Equal(t, kept[1].PartitionKey, rev.PartitionKey)
	_, err = store.Append(ctx, rev)
	require.NoError(t, err)

	var r Reversal
	require.NoError(t, json.Unmarshal(rev.Payload, &r))
	require.Equal(t, kept[1].ID, r.FactID)
	require.Equal(t, TypeDisputeCreated, r.FactType)
	require.JSONEq(t, `{"n":1}`, string(r.Payload))

	facts, err := Committed(ctx, store)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	require.Equal(t, kept[0].ID, facts[0].ID)
	require.Equal(t, kept[2].ID, facts[1].ID)
}

func TestCommittedPagesThroughLongJournals(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	at := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < replayPage+5; i++ {
		_, err := store.Append(ctx, mustFact(t, TypeMetadataUpdated, i, at))
		require.NoError(t, err)
	}

	facts, err := Committed(ctx, store)
	require.NoError(t, err)
	require.Len(t, facts, replayPage+5)
	require.Equal(t, uint64(replayPage+5), facts[len(facts)-1].Seq)
}
