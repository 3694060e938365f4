package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mp4dao/migrations"
)

// ApplyMigrations opens a pool on dsn and applies the embedded schema. With
// isolate set the schema lands in a throwaway Postgres schema that teardown
// drops, so suites can share one database.
func ApplyMigrations(ctx context.Context, dsn string, isolate bool) (*pgxpool.Pool, func(context.Context) error, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse pool config: %w", err)
	}

	teardown := func(context.Context) error { return nil }
	if isolate {
		schema := fmt.Sprintf("mp4dao_run_%d", time.Now().UnixNano())
		ident := pgx.Identifier{schema}.Sanitize()
		if err := execOnce(ctx, dsn, "CREATE SCHEMA "+ident); err != nil {
			return nil, nil, fmt.Errorf("create schema %s: %w", schema, err)
		}
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
		teardown = func(ctx context.Context) error {
			return execOnce(ctx, dsn, "DROP SCHEMA IF EXISTS "+ident+" CASCADE")
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect pool: %w", err)
	}
	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, teardown, nil
}

func execOnce(ctx context.Context, dsn, sql string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, sql)
	return err
}
