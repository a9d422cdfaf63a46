package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

func TestSkipStore_Lifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSkipStore(pool)
	ctx := context.Background()

	rec := &domain.SkipRecord{
		SkipID:           "skip1",
		Signature:        "sig1",
		InstructionIndex: 2,
		InstructionName:  "askLoan",
		Action:           "upsert",
		Kind:             domain.KindLoan,
		Address:          "loan1",
		CollectionHint:   ptr("col1"),
		Reason:           domain.SkipMissingParent,
		Error:            "parent collection not mirrored",
		CreatedAt:        100,
	}
	require.NoError(t, store.Record(ctx, rec))

	got, err := store.Get(ctx, "skip1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, domain.KindLoan, got.Kind)
	assert.Equal(t, "col1", *got.CollectionHint)
	assert.Nil(t, got.MintHint)
	assert.Nil(t, got.ResolvedAt)

	n, err := store.CountUnresolved(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.IncrementAttempts(ctx, "skip1", "still missing"))
	require.NoError(t, store.MarkResolved(ctx, "skip1", 500))

	n, err = store.CountUnresolved(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Redelivery of the same failure reopens the record.
	require.NoError(t, store.Record(ctx, rec))
	got, err = store.Get(ctx, "skip1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Attempts)
	assert.Nil(t, got.ResolvedAt)

	assert.ErrorIs(t, store.MarkResolved(ctx, "missing", 1), storage.ErrNotFound)
	assert.ErrorIs(t, store.IncrementAttempts(ctx, "missing", ""), storage.ErrNotFound)
}

func TestSkipStore_ListUnresolvedOrder(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSkipStore(pool)
	ctx := context.Background()

	for _, rec := range []*domain.SkipRecord{
		{SkipID: "b", Signature: "s", Reason: domain.SkipFetchFailed, CreatedAt: 20},
		{SkipID: "a", Signature: "s", Reason: domain.SkipFetchFailed, CreatedAt: 10},
		{SkipID: "c", Signature: "s", Reason: domain.SkipFetchFailed, CreatedAt: 30},
	} {
		require.NoError(t, store.Record(ctx, rec))
	}
	require.NoError(t, store.MarkResolved(ctx, "b", 40))

	list, err := store.ListUnresolved(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].SkipID)
	assert.Equal(t, "c", list[1].SkipID)
}

func TestSkipStore_RecordInvalid(t *testing.T) {
	store := NewSkipStore(nil)
	assert.ErrorIs(t, store.Record(context.Background(), &domain.SkipRecord{}), storage.ErrInvalidInput)
}
