package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestFormatDocumentNumber(t *testing.T) {
	day := time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC)
	require.Equal(t, "20260309", SequenceDay(day))
	require.Equal(t, "PO202603090007", FormatDocumentNumber(PrefixPurchaseOrder, day, 7))
	require.Equal(t, "TRF2026030912345", FormatDocumentNumber(PrefixTransfer, day, 12345))
}

func TestPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	require.Equal(t, Pagination{Page: 1, PerPage: 20, Total: 45, TotalPages: 3}, p)

	page, perPage := NormalizePage(3, 1000)
	require.Equal(t, 3, page)
	require.Equal(t, MaxPerPage, perPage)
	require.Equal(t, 20, Offset(2, 20))

	start, end := PageWindow(3, 20, 45)
	require.Equal(t, 40, start)
	require.Equal(t, 45, end)
	start, end = PageWindow(9, 20, 45)
	require.Equal(t, 45, start)
	require.Equal(t, 45, end)
}

func TestGuardReleasesKeyOnFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotency()
	calls := 0

	err := Guard(ctx, store, "k", "transfer", func() error {
		calls++
		return errors.New("failed")
	})
	require.EqualError(t, err, "failed")

	require.NoError(t, Guard(ctx, store, "k", "transfer", func() error {
		calls++
		return nil
	}))
	err = Guard(ctx, store, "k", "transfer", func() error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, ErrIdempotencyConflict)
	require.Equal(t, 2, calls)

	require.NoError(t, Guard(ctx, store, "", "transfer", func() error {
		calls++
		return nil
	}))
	require.NoError(t, Guard(ctx, nil, "k", "transfer", func() error {
		calls++
		return nil
	}))
	require.Equal(t, 4, calls)
}

func TestErrorTaxonomy(t *testing.T) {
	stock := &StockError{Kind: ErrInsufficientStock, StoreID: 1, ProductID: 4, Available: 2, Requested: 5}
	wrapped := fmt.Errorf("ship: %w", stock)
	require.ErrorIs(t, wrapped, ErrInsufficientStock)
	var se *StockError
	require.ErrorAs(t, wrapped, &se)
	require.Equal(t, int64(2), se.Available)
	require.Equal(t, "insufficient stock: product 4 at store 1 has 2, requested 5", stock.Error())

	persist := &PersistenceError{Op: "insert movement", Err: context.DeadlineExceeded}
	require.ErrorIs(t, persist, ErrPersistence)
	require.ErrorIs(t, persist, context.DeadlineExceeded)
	require.Equal(t, "the operation could not be completed, no changes were applied", UserSafeMessage(persist))

	transition := &TransitionError{Document: "purchase order", Action: "receive", Status: "draft"}
	require.ErrorIs(t, transition, ErrIllegalTransition)
	require.Equal(t, "purchase order: cannot receive while status is draft", UserSafeMessage(transition))

	require.ErrorIs(t, Invalid("quantity", "must be positive"), ErrValidation)
	require.Equal(t, "unexpected error", UserSafeMessage(errors.New("driver exploded")))
	require.True(t, IsNotFound(fmt.Errorf("store %w", ErrNotFound)))
}

func TestMemoryApprovals(t *testing.T) {
	ctx := context.Background()
	var approvals MemoryApprovals
	ref := ApprovalRef("transfer", 5)
	require.Equal(t, ref, ApprovalRef("transfer", 5))
	require.NotEqual(t, ref, ApprovalRef("transfer", 6))

	require.Error(t, approvals.Record(ctx, ApprovalLog{Module: "transfer", RefID: ref}))
	require.NoError(t, approvals.Record(ctx, ApprovalLog{Module: "transfer", RefID: ref, ActorID: 1, Action: ApprovalSubmit}))
	require.NoError(t, approvals.Record(ctx, ApprovalLog{Module: "transfer", RefID: ref, ActorID: 2, Action: ApprovalApprove}))
	require.NoError(t, approvals.Record(ctx, ApprovalLog{Module: "transfer", RefID: ApprovalRef("transfer", 6), ActorID: 2, Action: ApprovalApprove}))

	logs, err := approvals.List(ctx, "transfer", ref)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, ApprovalSubmit, logs[0].Action)
	require.Equal(t, ApprovalApprove, logs[1].Action)
	require.False(t, logs[1].At.IsZero())
}

func TestRedisLockerFailsFastWhenHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewRedisLocker(redislock.New(client), time.Minute)
	ctx := context.Background()
	key := DocumentLockKey("transfer", 42)
	require.Equal(t, "retailstock:transfer:42:lock", key)

	release, err := locker.Acquire(ctx, key)
	require.NoError(t, err)

	err = WithLock(ctx, locker, key, func() error { return nil })
	require.ErrorIs(t, err, ErrConcurrentModification)

	release()
	ran := false
	require.NoError(t, WithLock(ctx, locker, key, func() error {
		ran = true
		return nil
	}))
	require.True(t, ran)
	require.False(t, mr.Exists(key))
}

func TestWithLockNilLocker(t *testing.T) {
	ran := false
	require.NoError(t, WithLock(context.Background(), nil, "k", func() error {
		ran = true
		return nil
	}))
	require.True(t, ran)
}
