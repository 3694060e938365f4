package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mp4dao/account"
)

// DB abstracts pgxpool.Pool for testability.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore keeps the journal in the journal_facts table (migrations/0001).
type PGStore struct {
	db DB
}

func NewPGStore(db DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, fact Fact) (Fact, error) {
	const q = `
        INSERT INTO journal_facts (id, source, fact_type, actor, partition_key, payload, occurred_at)
        VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
        RETURNING seq
    `
	var seq int64
	if err := s.db.QueryRow(ctx, q,
		fact.ID.String(),
		fact.Source,
		fact.Type,
		fact.Actor.String(),
		fact.PartitionKey,
		string(fact.Payload),
		fact.OccurredAt,
	).Scan(&seq); err != nil {
		return Fact{}, fmt.Errorf("journal: insert fact: %w", err)
	}
	fact.Seq = uint64(seq)
	return fact, nil
}

const selectFacts = `
    SELECT seq, id::text, source, fact_type, actor, partition_key, payload::text, occurred_at
    FROM journal_facts
`

func (s *PGStore) List(ctx context.Context, afterSeq uint64, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.Query(ctx, selectFacts+` WHERE seq > $1 ORDER BY seq LIMIT $2`, int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list facts: %w", err)
	}
	return scanFacts(rows)
}

// FetchUnpublished returns the oldest unpublished facts in journal order.
// Publishing is at-least-once: two relays on one table may both fetch a fact.
func (s *PGStore) FetchUnpublished(ctx context.Context, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, selectFacts+` WHERE published_at IS NULL ORDER BY seq LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: fetch unpublished: %w", err)
	}
	return scanFacts(rows)
}

func (s *PGStore) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE journal_facts SET published_at = $2, attempts = attempts + 1, last_error = NULL WHERE id = $1`, id.String(), at.UTC())
	if err != nil {
		return fmt.Errorf("journal: mark published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFactNotFound
	}
	return nil
}

func (s *PGStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE journal_facts SET attempts = attempts + 1, last_error = $2, last_attempt_at = $3 WHERE id = $1`, id.String(), reason, at.UTC())
	if err != nil {
		return fmt.Errorf("journal: mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFactNotFound
	}
	return nil
}

func scanFacts(rows pgx.Rows) ([]Fact, error) {
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		var (
			f       Fact
			seq     int64
			id      string
			actor   string
			payload string
		)
		if err := rows.Scan(&seq, &id, &f.Source, &f.Type, &actor, &f.PartitionKey, &payload, &f.OccurredAt); err != nil {
			return nil, fmt.Errorf("journal: scan fact: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("journal: parse fact id: %w", err)
		}
		f.ID = parsed
		f.Seq = uint64(seq)
		f.Actor = account.Address(actor)
		f.Payload = []byte(payload)
		f.OccurredAt = f.OccurredAt.UTC()
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate facts: %w", err)
	}
	return out, nil
}
