package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "ORD-1",
		EventType:     "order.status_changed",
		Payload:       []byte(`{"status":"Milling"}`),
	}

	saved, err := repo.Enqueue(ctx, msg)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}
	if saved.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != saved.ID {
		t.Fatalf("unexpected pending batch: %+v", pending)
	}
}

func TestOutboxRepository_PullPendingKeepsOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	var ids []string
	for i := 0; i < 5; i++ {
		saved, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order"})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		ids = append(ids, saved.ID)
	}

	batch, err := repo.PullPending(ctx, 3)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected batch of 3, got %d", len(batch))
	}
	for i, msg := range batch {
		if msg.ID != ids[i] {
			t.Fatalf("position %d: expected %s, got %s", i, ids[i], msg.ID)
		}
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 5 {
		t.Fatalf("expected 5 pending, got %d", stats.PendingCount)
	}
	if !stats.OldestPendingAt.Equal(base.Add(time.Second)) {
		t.Fatalf("unexpected oldest pending: %s", stats.OldestPendingAt)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := NewOutboxRepository()

	sent, _ := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order"})
	failed, _ := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "product"})

	if err := repo.MarkSent(ctx, sent.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, failed.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if pending := repo.Pending(); len(pending) != 0 {
		t.Fatalf("expected no pending messages, got %d", len(pending))
	}

	if err := repo.MarkSent(ctx, "missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish, got %v", err)
	}
}
