package infra

import (
	"context"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// TestDSNEnv names the variable that points the suites at an existing
// database instead of a throwaway container.
const TestDSNEnv = "MP4DAO_TEST_PG_DSN"

type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres16 returns a DSN for a Postgres 16 journal database. An
// explicit override or MP4DAO_TEST_PG_DSN wins over starting a container.
func StartPostgres16(ctx context.Context, overrideDSN string) (*PGContainer, string, error) {
	if overrideDSN != "" {
		return &PGContainer{}, overrideDSN, nil
	}
	if dsn := os.Getenv(TestDSNEnv); dsn != "" {
		return &PGContainer{}, dsn, nil
	}

	pgC, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithDatabase("mp4dao"),
		postgres.WithUsername("mp4dao"),
		postgres.WithPassword("mp4dao"),
	)
	if err != nil {
		return nil, "", err
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", err
	}
	return &PGContainer{C: pgC}, dsn, nil
}

func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}
