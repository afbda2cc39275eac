package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
	"github.com/vladislavdragonenkov/crowngate/internal/storage/memory"
)

func TestTimelineRepository_ListIsChronological(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTimelineRepository()
	base := time.Date(2023, 10, 25, 9, 0, 0, 0, time.UTC)

	events := []domain.TimelineEvent{
		{OrderID: "ORD-1", Type: domain.TimelineStatusChanged, From: domain.OrderStatusReceived, To: domain.OrderStatusDesigning, Occurred: base.Add(2 * time.Hour)},
		{OrderID: "ORD-1", Type: domain.TimelineOrderSubmitted, To: domain.OrderStatusSubmitted, Occurred: base},
		{OrderID: "ORD-2", Type: domain.TimelineOrderSubmitted, To: domain.OrderStatusSubmitted, Occurred: base},
	}
	for _, ev := range events {
		if err := repo.Append(ctx, ev); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	got, err := repo.List(ctx, "ORD-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != domain.TimelineOrderSubmitted || got[1].To != domain.OrderStatusDesigning {
		t.Fatalf("unexpected order of events: %+v", got)
	}

	empty, err := repo.List(ctx, "ORD-404")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty history, got %v (err=%v)", empty, err)
	}
}
