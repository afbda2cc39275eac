package postgres

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

func setupIntegrationStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration tests are disabled in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcPostgres.Run(ctx,
		"postgres:18-alpine",
		tcPostgres.WithDatabase("crowngate"),
		tcPostgres.WithUsername("crowngate"),
		tcPostgres.WithPassword("crowngate"),
		tcPostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func quietEntry() *log.Entry {
	logger, _ := test.NewNullLogger()
	return log.NewEntry(logger)
}

func TestIntegration_MigrationsRoundTrip(t *testing.T) {
	store := setupIntegrationStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateUp(ctx, 0, quietEntry()))
	state, err := store.MigrationStatus(ctx, quietEntry())
	require.NoError(t, err)
	assert.Equal(t, int64(4), state.Version)
	assert.Equal(t, state.Total, state.Applied)

	require.NoError(t, store.MigrateDown(ctx, 1, quietEntry()))
	state, err = store.MigrationStatus(ctx, quietEntry())
	require.NoError(t, err)
	assert.Equal(t, int64(2), state.Version)

	require.NoError(t, store.MigrateUp(ctx, 1, quietEntry()))
}

func TestIntegration_SlotStoreOverwrites(t *testing.T) {
	store := setupIntegrationStore(t)
	ctx := context.Background()
	require.NoError(t, store.MigrateUp(ctx, 0, quietEntry()))

	slots := NewSlotStore(store)
	_, ok, err := slots.Load(ctx, domain.SlotOrders)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, slots.Save(ctx, map[domain.Slot][]byte{
		domain.SlotOrders:   []byte(`[{"id":"ORD-001"}]`),
		domain.SlotProducts: []byte(`[]`),
	}))
	require.NoError(t, slots.Save(ctx, map[domain.Slot][]byte{
		domain.SlotOrders: []byte(`[]`),
	}))

	data, ok, err := slots.Load(ctx, domain.SlotOrders)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[]`, string(data))

	var revision int64
	require.NoError(t, store.DB().QueryRowContext(ctx,
		`SELECT revision FROM fallback_slots WHERE slot = 'orders'`).Scan(&revision))
	assert.Equal(t, int64(2), revision)
}

func TestIntegration_OutboxAndIdempotencyFlow(t *testing.T) {
	store := setupIntegrationStore(t)
	ctx := context.Background()
	require.NoError(t, store.MigrateUp(ctx, 0, quietEntry()))

	outbox := NewOutboxRepository(store)
	msg, err := outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "ORD-006",
		EventType:     "order.created",
		Payload:       []byte(`{"id":"ORD-006"}`),
	})
	require.NoError(t, err)

	pending, err := outbox.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, outbox.MarkSent(ctx, msg.ID))

	stats, err := outbox.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)

	keys := NewIdempotencyRepository(store)
	_, err = keys.CreateProcessing(ctx, "key-1", "hash-1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = keys.CreateProcessing(ctx, "key-1", "hash-2", time.Now().Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
	require.NoError(t, keys.MarkDone(ctx, "key-1", domain.IdempotentResponse{
		HTTPStatus: 201, Body: []byte(`{"id":"ORD-006"}`), SyncState: "pending",
	}))
	stored, err := keys.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", stored.SyncState)

	_, err = keys.CreateProcessing(ctx, "key-2", "hash-1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	deleted, err := keys.DeleteExpired(ctx, time.Now(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}
