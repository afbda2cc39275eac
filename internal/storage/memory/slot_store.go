package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

// SlotStore — резервное хранилище слотов в памяти процесса.
// Состояние не переживает перезапуск; используется в тестах и как драйвер "memory".
type SlotStore struct {
	mu    sync.RWMutex
	slots map[domain.Slot][]byte
	saves int
}

// NewSlotStore создаёт пустое хранилище слотов.
func NewSlotStore() *SlotStore {
	return &SlotStore{slots: make(map[domain.Slot][]byte)}
}

// Load возвращает копию содержимого слота.
func (s *SlotStore) Load(ctx context.Context, slot domain.Slot) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.slots[slot]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Save перезаписывает переданные слоты одной операцией.
func (s *SlotStore) Save(ctx context.Context, slots map[domain.Slot][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for slot, data := range slots {
		s.slots[slot] = append([]byte(nil), data...)
	}
	s.saves++
	return nil
}

// Put записывает слот напрямую, минуя Save (подготовка данных в тестах).
func (s *SlotStore) Put(slot domain.Slot, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot] = append([]byte(nil), data...)
}

// Saves возвращает количество выполненных Save.
func (s *SlotStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

var _ domain.SlotStore = (*SlotStore)(nil)
