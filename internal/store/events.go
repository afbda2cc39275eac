package store

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

// EventKind различает обычные изменения и предупреждения о сбое синхронизации.
type EventKind string

const (
	// EventChanged — коллекция изменилась (локальная запись или обновление с бэкенда).
	EventChanged EventKind = "changed"
	// EventSyncFailed — фоновая запись в удалённый бэкенд не удалась; локальное состояние не откатывается.
	EventSyncFailed EventKind = "sync_failed"
)

// Collection — имя коллекции хранилища.
type Collection string

const (
	CollectionOrders   Collection = "orders"
	CollectionUsers    Collection = "users"
	CollectionProducts Collection = "products"
)

// Op — операция, вызвавшая событие.
type Op string

const (
	OpRead   Op = "read"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event — уведомление подписчику.
type Event struct {
	Kind       EventKind
	Collection Collection
	Op         Op
	ID         string
	// Order — состояние заказа после записи; Previous: до обновления или удаления.
	Order    *domain.Order
	Previous *domain.Order
	Product  *domain.Product
	Err      error
	Revision uint64
	At       time.Time
}

// Listener получает уведомления хранилища. Вызывается вне блокировок хранилища.
type Listener func(Event)

// registry — реестр подписчиков с адресацией по токену.
type registry struct {
	mu        sync.RWMutex
	next      uint64
	listeners map[uint64]Listener
}

func newRegistry() *registry {
	return &registry{listeners: make(map[uint64]Listener)}
}

func (r *registry) add(l Listener) (uint64, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.listeners[r.next] = l
	return r.next, len(r.listeners)
}

func (r *registry) remove(token uint64) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.listeners[token]
	delete(r.listeners, token)
	return ok, len(r.listeners)
}

// snapshot фиксирует состав подписчиков на момент начала прохода.
func (r *registry) snapshot() []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		result = append(result, l)
	}
	return result
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}
