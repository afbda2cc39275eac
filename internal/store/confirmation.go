package store

import (
	"context"
	"sync"
)

// Confirmation — результат фоновой синхронизации записи с удалённым бэкендом.
// В локальном режиме подтверждение создаётся уже завершённым.
type Confirmation struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newConfirmation() *Confirmation {
	return &Confirmation{done: make(chan struct{})}
}

func resolvedConfirmation(err error) *Confirmation {
	c := newConfirmation()
	c.resolve(err)
	return c
}

func (c *Confirmation) resolve(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done закрывается, когда бэкенд ответил (или подтверждение не требовалось).
func (c *Confirmation) Done() <-chan struct{} {
	return c.done
}

// Err возвращает ошибку синхронизации; до завершения всегда nil.
func (c *Confirmation) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Pending сообщает, что бэкенд ещё не ответил.
func (c *Confirmation) Pending() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Wait ждёт завершения синхронизации или отмены ctx.
func (c *Confirmation) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
