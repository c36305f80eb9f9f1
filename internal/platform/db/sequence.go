package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// NextSequence increments the (document type, day) counter inside tx and returns the new value.
// The row lock taken by the upsert serialises concurrent creators for the same day.
func NextSequence(ctx context.Context, tx pgx.Tx, docType, day string) (int64, error) {
	var value int64
	err := tx.QueryRow(ctx, `INSERT INTO document_sequences (doc_type, day, last_value)
VALUES ($1, $2, 1)
ON CONFLICT (doc_type, day) DO UPDATE SET last_value = document_sequences.last_value + 1
RETURNING last_value`, docType, day).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("platform/db: next sequence %s/%s: %w", docType, day, err)
	}
	return value, nil
}
