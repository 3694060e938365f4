package dispute_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mp4dao/dispute"
	"mp4dao/test/infra"
)

func TestRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("postgres read model test skipped in -short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, dsn, err := infra.StartPostgres16(ctx, "")
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, true)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Close()
		_ = teardown(context.Background())
	})

	_, facts := journaledRegistry(t)
	svc := dispute.NewService(dispute.NewRepository(pool))
	for round := 0; round < 2; round++ {
		for _, f := range facts {
			require.NoError(t, svc.Publish(ctx, f))
		}
	}

	got, err := svc.ListByWork(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, dispute.StatusResolved, got[0].Status)
	require.Equal(t, owner, got[0].Mediator)
	require.NotNil(t, got[0].ResolvedAt)
	require.Equal(t, dispute.StatusPending, got[1].Status)
	require.True(t, got[1].Mediator.IsZero())
	require.NotNil(t, got[1].ResponseDeadline)

	_, err = svc.Get(ctx, 42)
	require.ErrorIs(t, err, dispute.ErrNotFound)

	repo := dispute.NewRepository(pool)
	require.NoError(t, repo.ApplyReverted(ctx, 1, got[1].ID))
	_, err = repo.Get(ctx, got[1].ID)
	require.NoError(t, err, "a stale reversal leaves newer rows alone")

	require.NoError(t, repo.ApplyReverted(ctx, uint64(len(facts))+1, got[1].ID))
	_, err = repo.Get(ctx, got[1].ID)
	require.ErrorIs(t, err, dispute.ErrNotFound)
}
