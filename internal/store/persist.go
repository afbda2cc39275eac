package store

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

// rehydrate восстанавливает состояние локального режима из резервного хранилища.
// Отсутствующий слот оставляет коллекцию из seed; ошибка чтения или декодирования
// любого слота приводит к полному seed.
func rehydrate(ctx context.Context, fallback domain.SlotStore, seed Dataset, logger *log.Entry) Dataset {
	if fallback == nil {
		return seed.Clone()
	}

	ds, err := loadDataset(ctx, fallback, seed)
	if err != nil {
		logger.WithError(err).Error("local fallback is unreadable, starting from seed dataset")
		return seed.Clone()
	}
	return ds
}

func loadDataset(ctx context.Context, fallback domain.SlotStore, seed Dataset) (Dataset, error) {
	ds := seed.Clone()
	if err := loadSlot(ctx, fallback, domain.SlotOrders, &ds.Orders); err != nil {
		return Dataset{}, err
	}
	if err := loadSlot(ctx, fallback, domain.SlotUsers, &ds.Users); err != nil {
		return Dataset{}, err
	}
	if err := loadSlot(ctx, fallback, domain.SlotProducts, &ds.Products); err != nil {
		return Dataset{}, err
	}
	normalizeOrders(ds.Orders)
	return ds, nil
}

func loadSlot[T any](ctx context.Context, fallback domain.SlotStore, slot domain.Slot, dst *[]T) error {
	data, ok, err := fallback.Load(ctx, slot)
	if err != nil {
		return fmt.Errorf("load slot %s: %w", slot, err)
	}
	if !ok {
		return nil
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("decode slot %s: %w: %v", slot, domain.ErrSlotCorrupted, err)
	}
	if items == nil {
		items = []T{}
	}
	*dst = items
	return nil
}

// EncodeDataset сериализует коллекции в слоты резервного хранилища.
func EncodeDataset(ds Dataset) (map[domain.Slot][]byte, error) {
	orders, err := json.Marshal(nonNil(ds.Orders))
	if err != nil {
		return nil, fmt.Errorf("encode orders: %w", err)
	}
	users, err := json.Marshal(nonNil(ds.Users))
	if err != nil {
		return nil, fmt.Errorf("encode users: %w", err)
	}
	products, err := json.Marshal(nonNil(ds.Products))
	if err != nil {
		return nil, fmt.Errorf("encode products: %w", err)
	}
	return map[domain.Slot][]byte{
		domain.SlotOrders:   orders,
		domain.SlotUsers:    users,
		domain.SlotProducts: products,
	}, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// persist перезаписывает резервное хранилище текущим снимком.
// Снимок берётся под persistMu, поэтому более старая ревизия не перезапишет более новую.
func (s *Store) persist(ctx context.Context) {
	if s.mode != ModeLocal || s.fallback == nil {
		return
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	revision, ds := s.snapshot()
	if revision <= s.persistedRev {
		return
	}

	slots, err := EncodeDataset(ds)
	if err == nil {
		err = s.fallback.Save(ctx, slots)
	}
	s.metrics.RecordFallbackPersist(err)
	if err != nil {
		s.log.WithError(err).WithField("revision", revision).Warn("failed to persist local snapshot")
		return
	}
	s.persistedRev = revision
}
