package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mp4dao/account"
)

var (
	// ErrOperatorNotFound signals that the operator does not exist.
	ErrOperatorNotFound = errors.New("auth: operator not found")
	// ErrDuplicateEmail signals that the email is already enrolled.
	ErrDuplicateEmail = errors.New("auth: email already exists")
)

// Repository handles operator credential storage.
type Repository interface {
	CreateOperator(ctx context.Context, params CreateOperatorParams) (Operator, error)
	GetOperatorByEmail(ctx context.Context, email string) (Operator, error)
}

// CreateOperatorParams contains write parameters for enrolling operators.
type CreateOperatorParams struct {
	Email        string
	Address      account.Address
	PasswordHash string
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed operator repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) CreateOperator(ctx context.Context, params CreateOperatorParams) (Operator, error) {
	const insertSQL = `
		INSERT INTO operators (email, address, password_hash)
		VALUES (lower($1), $2, $3)
		RETURNING id::text, email, address, password_hash, created_at
	`

	op, err := scanOperator(r.pool.QueryRow(ctx, insertSQL, params.Email, params.Address.String(), params.PasswordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Operator{}, ErrDuplicateEmail
		}
		return Operator{}, fmt.Errorf("auth: create operator: %w", err)
	}
	return op, nil
}

func (r *PGRepository) GetOperatorByEmail(ctx context.Context, email string) (Operator, error) {
	const selectSQL = `
		SELECT id::text, email, address, password_hash, created_at
		FROM operators
		WHERE email = lower($1)
	`

	op, err := scanOperator(r.pool.QueryRow(ctx, selectSQL, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Operator{}, ErrOperatorNotFound
		}
		return Operator{}, fmt.Errorf("auth: get operator by email: %w", err)
	}
	return op, nil
}

func scanOperator(row pgx.Row) (Operator, error) {
	var (
		op      Operator
		address string
	)
	if err := row.Scan(&op.ID, &op.Email, &address, &op.PasswordHash, &op.CreatedAt); err != nil {
		return Operator{}, err
	}
	op.Address = account.Address(address)
	return op, nil
}
