package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"mp4dao/account"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS journal_facts (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    id              TEXT NOT NULL UNIQUE,
    source          TEXT NOT NULL,
    fact_type       TEXT NOT NULL,
    actor           TEXT NOT NULL DEFAULT '',
    partition_key   TEXT NOT NULL DEFAULT '',
    payload         TEXT NOT NULL,
    occurred_at     INTEGER NOT NULL,
    published_at    INTEGER,
    attempts        INTEGER NOT NULL DEFAULT 0,
    last_error      TEXT,
    last_attempt_at INTEGER
);
CREATE INDEX IF NOT EXISTS journal_facts_unpublished_idx ON journal_facts (published_at, seq);
`

// SQLiteStore keeps the journal in an embedded SQLite database, for single
// node deployments without Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the journal at path and applies its schema.
// ":memory:" gives a private in-process journal.
func OpenSQLite(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite: %w", err)
	}
	// one connection keeps appends ordered and keeps :memory: a single database
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, fact Fact) (Fact, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO journal_facts (id, source, fact_type, actor, partition_key, payload, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fact.ID.String(),
		fact.Source,
		fact.Type,
		fact.Actor.String(),
		fact.PartitionKey,
		string(fact.Payload),
		toNanos(fact.OccurredAt),
	)
	if err != nil {
		return Fact{}, fmt.Errorf("journal: insert fact: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Fact{}, fmt.Errorf("journal: read fact seq: %w", err)
	}
	fact.Seq = uint64(seq)
	return fact, nil
}

const sqliteSelectFacts = `SELECT seq, id, source, fact_type, actor, partition_key, payload, occurred_at FROM journal_facts`

func (s *SQLiteStore) List(ctx context.Context, afterSeq uint64, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, sqliteSelectFacts+` WHERE seq > ? ORDER BY seq LIMIT ?`, int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("journal: list facts: %w", err)
	}
	return scanSQLiteFacts(rows)
}

func (s *SQLiteStore) FetchUnpublished(ctx context.Context, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, sqliteSelectFacts+` WHERE published_at IS NULL ORDER BY seq LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: fetch unpublished: %w", err)
	}
	return scanSQLiteFacts(rows)
}

func (s *SQLiteStore) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE journal_facts SET published_at = ?, attempts = attempts + 1, last_error = NULL WHERE id = ?`,
		toNanos(at), id.String())
	if err != nil {
		return fmt.Errorf("journal: mark published: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE journal_facts SET attempts = attempts + 1, last_error = ?, last_attempt_at = ? WHERE id = ?`,
		reason, toNanos(at), id.String())
	if err != nil {
		return fmt.Errorf("journal: mark failed: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("journal: rows affected: %w", err)
	}
	if n == 0 {
		return ErrFactNotFound
	}
	return nil
}

func scanSQLiteFacts(rows *sql.Rows) ([]Fact, error) {
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		var (
			f        Fact
			seq      int64
			id       string
			actor    string
			payload  string
			occurred int64
		)
		if err := rows.Scan(&seq, &id, &f.Source, &f.Type, &actor, &f.PartitionKey, &payload, &occurred); err != nil {
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
		f.OccurredAt = fromNanos(occurred)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate facts: %w", err)
	}
	return out, nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(v int64) time.Time {
	return time.Unix(0, v).UTC()
}
