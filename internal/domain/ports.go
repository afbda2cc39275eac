package domain

import (
	"context"
	"time"
)

// Sheet — имя листа удалённой таблицы.
type Sheet string

const (
	SheetOrders   Sheet = "Orders"
	SheetUsers    Sheet = "Users"
	SheetProducts Sheet = "Products"
)

// Record — строка листа в том виде, в каком её вернул бэкенд.
// Значения ячеек могут быть строками или числами.
type Record map[string]any

// Backend описывает удалённый табличный бэкенд (request/response, без транзакций).
type Backend interface {
	// Read возвращает все строки листа или ErrMalformedResponse, если ответ не массив.
	Read(ctx context.Context, sheet Sheet) ([]Record, error)
	// Create добавляет строку.
	Create(ctx context.Context, sheet Sheet, data any) error
	// Update применяет частичное обновление к строке с идентификатором id.
	Update(ctx context.Context, sheet Sheet, id string, patch any) error
	// Delete удаляет строку.
	Delete(ctx context.Context, sheet Sheet, id string) error
}

// Slot — логическое имя ячейки резервного хранилища.
type Slot string

const (
	SlotOrders   Slot = "orders"
	SlotUsers    Slot = "users"
	SlotProducts Slot = "products"
)

// Slots возвращает все слоты в фиксированном порядке.
func Slots() []Slot {
	return []Slot{SlotOrders, SlotUsers, SlotProducts}
}

// SlotStore — долговременное резервное хранилище сериализованных коллекций.
// Читается один раз при старте, перезаписывается целиком после каждого изменения.
type SlotStore interface {
	// Load возвращает содержимое слота; ok=false, если слот ещё не записывался.
	Load(ctx context.Context, slot Slot) (data []byte, ok bool, err error)
	// Save перезаписывает переданные слоты.
	Save(ctx context.Context, slots map[Slot][]byte) error
}

// OutboxPublisher публикует события из outbox наружу.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository хранит события до их публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит историю этапов заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по Idempotency-Key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, resp IdempotentResponse) error
	MarkFailed(ctx context.Context, key string, resp IdempotentResponse) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущий backlog outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
