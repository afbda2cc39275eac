package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
	"github.com/vladislavdragonenkov/crowngate/internal/storage/memory"
)

func TestIdempotencyRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing(ctx, " key-1 ", "hash-1", ttl)
	if err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if created.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("expected status %s, got %s", domain.IdempotencyStatusProcessing, created.Status)
	}

	got, err := repo.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RequestHash != "hash-1" || !got.TTLAt.Equal(ttl) {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestIdempotencyRepository_Conflicts(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	if _, err := repo.CreateProcessing(ctx, "key-2", "hash-a", ttl); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if _, err := repo.CreateProcessing(ctx, "key-2", "hash-a", ttl); !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected ErrIdempotencyKeyAlreadyExists, got %v", err)
	}
	if _, err := repo.CreateProcessing(ctx, "key-2", "hash-b", ttl); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected ErrIdempotencyHashMismatch, got %v", err)
	}
	if _, err := repo.CreateProcessing(ctx, "", "hash", ttl); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
}

func TestIdempotencyRepository_MarkDoneStoresResponse(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	if _, err := repo.CreateProcessing(ctx, "key-3", "hash", time.Time{}); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}

	body := []byte(`{"id":"ORD-1"}`)
	if err := repo.MarkDone(ctx, "key-3", domain.IdempotentResponse{HTTPStatus: 201, Body: body, SyncState: "synced"}); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	body[0] = 'x'

	got, err := repo.Get(ctx, "key-3")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.IdempotencyStatusDone || got.HTTPStatus != 201 || got.SyncState != "synced" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if string(got.ResponseBody) != `{"id":"ORD-1"}` {
		t.Fatalf("stored body must be a copy, got %s", got.ResponseBody)
	}

	if err := repo.MarkFailed(ctx, "missing", domain.IdempotentResponse{HTTPStatus: 500}); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound, got %v", err)
	}
}

func TestIdempotencyRepository_ExpiredKeys(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()
	repo := memory.NewIdempotencyRepositoryWithClock(func() time.Time { return now })

	if _, err := repo.CreateProcessing(ctx, "old", "hash", now.Add(time.Minute)); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if _, err := repo.CreateProcessing(ctx, "fresh", "hash", now.Add(time.Hour)); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}

	now = now.Add(10 * time.Minute)

	if _, err := repo.Get(ctx, "old"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expired key must not be visible, got %v", err)
	}
	if _, err := repo.CreateProcessing(ctx, "old", "other-hash", now.Add(time.Hour)); err != nil {
		t.Fatalf("expired key must be reusable, got %v", err)
	}

	removed, err := repo.DeleteExpired(ctx, now.Add(2*time.Hour), 1)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if removed != 1 || repo.Len() != 1 {
		t.Fatalf("expected limit to cap removal: removed=%d left=%d", removed, repo.Len())
	}
}
