package redis

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

func setupSlotStore(t *testing.T) *SlotStore {
	t.Helper()
	if testing.Short() {
		t.Skip("redis integration tests are disabled in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcRedis.Run(ctx,
		"redis:7-alpine",
		tcRedis.WithSnapshotting(0, 0),
	)
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	store, err := New(ctx, Config{Addr: endpoint, Prefix: "test:"}, log.NewEntry(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestKeyLayout(t *testing.T) {
	store := NewWithClient(nil, "lab:fallback:", nil)
	assert.Equal(t, "lab:fallback:orders", store.Key(domain.SlotOrders))

	store = NewWithClient(nil, "", nil)
	assert.Equal(t, "crowngate:fallback:products", store.Key(domain.SlotProducts))
}

func TestNew_RequiresAddr(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil)
	require.Error(t, err)
}

func TestSlotStore_RoundTrip(t *testing.T) {
	store := setupSlotStore(t)
	ctx := context.Background()

	_, ok, err := store.Load(ctx, domain.SlotOrders)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, map[domain.Slot][]byte{
		domain.SlotOrders: []byte(`[{"id":"ORD-001"}]`),
		domain.SlotUsers:  []byte(`[]`),
	}))

	data, ok, err := store.Load(ctx, domain.SlotOrders)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"ORD-001"}]`, string(data))

	raw, err := store.client.Get(ctx, "test:users").Result()
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
	assert.NoError(t, store.Ping(ctx))
}
