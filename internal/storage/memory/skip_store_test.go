package memory

import (
	"context"
	"errors"
	"testing"

	"dexloan-indexer/internal/domain"
	"dexloan-indexer/internal/storage"
)

func TestSkipStore_RecordReopens(t *testing.T) {
	store := NewSkipStore()
	ctx := context.Background()

	rec := &domain.SkipRecord{
		SkipID:    "skip1",
		Signature: "sig",
		Reason:    domain.SkipFetchFailed,
		Error:     "timeout",
		Attempts:  1,
		CreatedAt: 10,
	}
	if err := store.Record(ctx, rec); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.MarkResolved(ctx, "skip1", 20); err != nil {
		t.Fatalf("MarkResolved failed: %v", err)
	}

	n, _ := store.CountUnresolved(ctx)
	if n != 0 {
		t.Fatalf("CountUnresolved: got %d, want 0", n)
	}

	rec.Error = "timeout again"
	if err := store.Record(ctx, rec); err != nil {
		t.Fatalf("second Record failed: %v", err)
	}

	got, err := store.Get(ctx, "skip1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ResolvedAt != nil || got.Attempts != 2 || got.Error != "timeout again" {
		t.Errorf("unexpected reopened record: %+v", got)
	}
}

func TestSkipStore_ListUnresolved(t *testing.T) {
	store := NewSkipStore()
	ctx := context.Background()

	for i, id := range []string{"c", "a", "b"} {
		_ = store.Record(ctx, &domain.SkipRecord{SkipID: id, CreatedAt: int64(3 - i)})
	}
	_ = store.MarkResolved(ctx, "a", 100)

	list, err := store.ListUnresolved(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnresolved failed: %v", err)
	}
	if len(list) != 2 || list[0].SkipID != "b" || list[1].SkipID != "c" {
		t.Fatalf("unexpected order: %+v", list)
	}

	list, _ = store.ListUnresolved(ctx, 1)
	if len(list) != 1 {
		t.Errorf("limit not applied: got %d", len(list))
	}

	if err := store.IncrementAttempts(ctx, "b", "still failing"); err != nil {
		t.Fatalf("IncrementAttempts failed: %v", err)
	}
	got, _ := store.Get(ctx, "b")
	if got.Attempts != 1 || got.Error != "still failing" {
		t.Errorf("unexpected record: %+v", got)
	}

	if err := store.IncrementAttempts(ctx, "zzz", ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("IncrementAttempts on missing: got %v", err)
	}
}

func TestInstructionLogStore(t *testing.T) {
	store := NewInstructionLogStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.InstructionLogEntry{
		{Signature: "sig", InstructionIndex: 2, InstructionName: "giveLoan"},
		{Signature: "sig", InstructionIndex: 0, InstructionName: "askLoan"},
		{Signature: "other", InstructionIndex: 0},
	})
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, _ := store.GetBySignature(ctx, "sig")
	if len(got) != 2 || got[0].InstructionName != "askLoan" {
		t.Fatalf("unexpected entries: %+v", got)
	}

	if err := store.InsertBulk(ctx, []*domain.InstructionLogEntry{{}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty signature: got %v", err)
	}
	if store.Len() != 3 {
		t.Errorf("Len: got %d, want 3", store.Len())
	}
}
