package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mp4dao/account"
)

var ErrNotFound = errors.New("dispute: not found")

// Repository is the Postgres read model of dispute records. Every write
// carries the journal seq of the fact it comes from; a row only moves
// forward, so redelivered facts are no-ops.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ApplyCreated(ctx context.Context, seq uint64, rec Record) error {
	const query = `
		INSERT INTO dispute_records (id, work_id, claimant, reason, evidence_uri, status, created_at, response_deadline, applied_seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		int64(rec.ID), int64(rec.WorkID), rec.Claimant.String(), rec.Reason, rec.EvidenceURI,
		rec.Status.String(), rec.CreatedAt, rec.ResponseDeadline, int64(seq))
	if err != nil {
		return fmt.Errorf("dispute: apply created: %w", err)
	}
	return nil
}

func (r *Repository) ApplyTransition(ctx context.Context, seq uint64, id uint64, status Status, mediator account.Address, at time.Time) error {
	const query = `
		UPDATE dispute_records
		SET status = $2, mediator = $3, resolved_at = $4, applied_seq = $5
		WHERE id = $1 AND applied_seq < $5
	`
	tag, err := r.pool.Exec(ctx, query, int64(id), status.String(), mediator.String(), at, int64(seq))
	if err != nil {
		return fmt.Errorf("dispute: apply transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM dispute_records WHERE id = $1)`, int64(id)).Scan(&exists); err != nil {
			return fmt.Errorf("dispute: apply transition check: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

// ApplyReverted removes a record whose creation was reverted. Rows written
// by later facts are left alone.
func (r *Repository) ApplyReverted(ctx context.Context, seq uint64, id uint64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM dispute_records WHERE id = $1 AND applied_seq < $2`, int64(id), int64(seq)); err != nil {
		return fmt.Errorf("dispute: apply reverted: %w", err)
	}
	return nil
}

const selectRecords = `
	SELECT id, work_id, claimant, reason, evidence_uri, status, COALESCE(mediator, ''), created_at, resolved_at, response_deadline
	FROM dispute_records
`

func (r *Repository) Get(ctx context.Context, id uint64) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, selectRecords+` WHERE id = $1`, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: get: %w", err)
	}
	return rec, nil
}

func (r *Repository) ListByWork(ctx context.Context, workID uint64) ([]Record, error) {
	rows, err := r.pool.Query(ctx, selectRecords+` WHERE work_id = $1 ORDER BY id`, int64(workID))
	if err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec              Record
		id, workID       int64
		claimant, status string
		mediator         string
	)
	err := row.Scan(&id, &workID, &claimant, &rec.Reason, &rec.EvidenceURI, &status, &mediator,
		&rec.CreatedAt, &rec.ResolvedAt, &rec.ResponseDeadline)
	if err != nil {
		return Record{}, err
	}
	if rec.Status, err = ParseStatus(status); err != nil {
		return Record{}, err
	}
	rec.ID, rec.WorkID = uint64(id), uint64(workID)
	rec.Claimant, rec.Mediator = account.Address(claimant), account.Address(mediator)
	return rec, nil
}
