package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

func TestSlotStore_LoadMissing(t *testing.T) {
	store, err := NewSlotStore(t.TempDir())
	require.NoError(t, err)

	data, ok, err := store.Load(context.Background(), domain.SlotOrders)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestSlotStore_SaveOverwritesAndLeavesNoTempFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "fallback")
	store, err := NewSlotStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, map[domain.Slot][]byte{
		domain.SlotOrders: []byte(`[{"id":"ORD-001"}]`),
		domain.SlotUsers:  []byte(`[]`),
	}))
	require.NoError(t, store.Save(ctx, map[domain.Slot][]byte{
		domain.SlotOrders: []byte(`[]`),
	}))

	orders, ok, err := store.Load(ctx, domain.SlotOrders)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[]`, string(orders))

	users, ok, err := store.Load(ctx, domain.SlotUsers)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[]`, string(users))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"orders.json", "users.json"}, names)
}

func TestSlotStore_CancelledContext(t *testing.T) {
	store, err := NewSlotStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = store.Save(ctx, map[domain.Slot][]byte{domain.SlotOrders: []byte(`[]`)})
	require.ErrorIs(t, err, context.Canceled)

	_, _, err = store.Load(ctx, domain.SlotOrders)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewSlotStore_RequiresDir(t *testing.T) {
	_, err := NewSlotStore("")
	require.Error(t, err)
}
