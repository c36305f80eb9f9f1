package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/retailstock/internal/shared"
)

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
// Serialization failures surface as shared.ErrConcurrentModification.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Classify("begin tx", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return Classify("tx", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Classify("commit tx", err)
	}

	return nil
}

// Classify maps driver errors onto the shared taxonomy. Errors already in the
// taxonomy pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s (%s)", shared.ErrConcurrentModification, op, pgErr.Code)
		case "23505":
			return fmt.Errorf("%w: %s: duplicate %s", shared.ErrConcurrentModification, op, pgErr.ConstraintName)
		}
		return &shared.PersistenceError{Op: op, Err: err}
	}
	if isDomainError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &shared.PersistenceError{Op: op, Err: err}
}

func isDomainError(err error) bool {
	for _, target := range []error{
		shared.ErrNotFound,
		shared.ErrValidation,
		shared.ErrIllegalTransition,
		shared.ErrNegativeStock,
		shared.ErrInsufficientStock,
		shared.ErrConcurrentModification,
		shared.ErrPersistence,
		shared.ErrIdempotencyConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
