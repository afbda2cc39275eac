// Package file хранит слоты резервного хранилища в JSON-файлах на диске.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// SlotStore держит каждый слот в отдельном файле <dir>/<slot>.json.
// Запись идёт во временный файл с последующим rename, поэтому читатель
// никогда не видит наполовину записанный слот.
type SlotStore struct {
	mu  sync.Mutex
	dir string
}

// NewSlotStore создаёт каталог dir, если его ещё нет.
func NewSlotStore(dir string) (*SlotStore, error) {
	if dir == "" {
		return nil, errors.New("fallback dir is required")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create fallback dir: %w", err)
	}
	return &SlotStore{dir: dir}, nil
}

// Dir возвращает каталог хранилища.
func (s *SlotStore) Dir() string {
	return s.dir
}

func (s *SlotStore) path(slot domain.Slot) string {
	return filepath.Join(s.dir, string(slot)+".json")
}

func (s *SlotStore) Load(ctx context.Context, slot domain.Slot) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(s.path(slot))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read slot %s: %w", slot, err)
	}
	return data, true, nil
}

func (s *SlotStore) Save(ctx context.Context, slots map[domain.Slot][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range domain.Slots() {
		data, ok := slots[slot]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.writeAtomic(slot, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *SlotStore) writeAtomic(slot domain.Slot, data []byte) (retErr error) {
	tmp, err := os.CreateTemp(s.dir, string(slot)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for slot %s: %w", slot, err)
	}
	defer func() {
		if retErr != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write slot %s: %w", slot, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync slot %s: %w", slot, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close slot %s: %w", slot, err)
	}
	if err := os.Chmod(tmp.Name(), filePerm); err != nil {
		return fmt.Errorf("chmod slot %s: %w", slot, err)
	}
	if err := os.Rename(tmp.Name(), s.path(slot)); err != nil {
		return fmt.Errorf("rename slot %s: %w", slot, err)
	}
	return nil
}

var _ domain.SlotStore = (*SlotStore)(nil)
