package shared

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// Idempotency guards replayable commands.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// CheckAndInsert ensures key uniqueness per module.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if err := checkIdempotencyArgs(key, module); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}

func checkIdempotencyArgs(key, module string) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	return nil
}

// Guard runs fn once per key. The key is released again when fn fails so the
// caller may resubmit. An empty key or nil store runs fn unguarded.
func Guard(ctx context.Context, store Idempotency, key, module string, fn func() error) error {
	if store == nil || key == "" {
		return fn()
	}
	if err := store.CheckAndInsert(ctx, key, module); err != nil {
		return err
	}
	if err := fn(); err != nil {
		_ = store.Delete(context.WithoutCancel(ctx), key)
		return err
	}
	return nil
}

// MemoryIdempotency keeps keys in process. Used when no database is configured.
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

// NewMemoryIdempotency constructs an in-process key store.
func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{keys: make(map[string]time.Time)}
}

// CheckAndInsert records key or returns ErrIdempotencyConflict.
func (m *MemoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	if err := checkIdempotencyArgs(key, module); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return ErrIdempotencyConflict
	}
	m.keys[key] = time.Now()
	return nil
}

// Delete forgets key.
func (m *MemoryIdempotency) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.keys, key)
	m.mu.Unlock()
	return nil
}

// Cleanup drops keys older than retention.
func (m *MemoryIdempotency) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, at := range m.keys {
		if at.Before(cutoff) {
			delete(m.keys, k)
			n++
		}
	}
	return n, nil
}
