// Package changefeed превращает уведомления хранилища в сообщения outbox
// и историю производственных этапов заказа.
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
	"github.com/vladislavdragonenkov/crowngate/internal/metrics"
	"github.com/vladislavdragonenkov/crowngate/internal/store"
)

// Типы событий ленты изменений.
const (
	EventOrderCreated       = "order.created"
	EventOrderUpdated       = "order.updated"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderDeleted       = "order.deleted"
	EventProductCreated     = "product.created"
	EventProductDeleted     = "product.deleted"
	EventSyncFailed         = "sync.failed"
)

const (
	aggregateOrder   = "order"
	aggregateProduct = "product"
	aggregateUser    = "user"

	defaultBuffer = 1024
)

// StatusChange — payload события order.status_changed.
type StatusChange struct {
	ID   string             `json:"id"`
	From domain.OrderStatus `json:"from"`
	To   domain.OrderStatus `json:"to"`
}

// OrderUpdate — payload события order.updated.
type OrderUpdate struct {
	Order    domain.Order `json:"order"`
	Previous domain.Order `json:"previous"`
}

// SyncFailure — payload события sync.failed.
type SyncFailure struct {
	Collection string `json:"collection"`
	Op         string `json:"op"`
	ID         string `json:"id,omitempty"`
	Error      string `json:"error"`
}

// Option настраивает Feed.
type Option func(*Feed)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(f *Feed) { f.logger = logger }
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(f *Feed) { f.metrics = m }
}

// WithBuffer задаёт ёмкость очереди событий между хранилищем и Run.
func WithBuffer(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.buffer = n
		}
	}
}

// Feed подписывается на хранилище и записывает события в outbox и timeline.
// Outbox может быть nil: тогда ведётся только история этапов.
type Feed struct {
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	logger   *log.Entry
	metrics  *metrics.OutboxMetrics
	buffer   int
	now      func() time.Time
	newID    func() string

	events chan store.Event
	done   chan struct{}
}

// New создаёт ленту изменений.
func New(outbox domain.OutboxRepository, timeline domain.TimelineRepository, opts ...Option) *Feed {
	f := &Feed{
		outbox:   outbox,
		timeline: timeline,
		buffer:   defaultBuffer,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = log.WithField("component", "changefeed")
	}
	f.events = make(chan store.Event, f.buffer)
	return f
}

// Listener возвращает подписчика хранилища. События передаются в Run по порядку;
// при заполненной очереди подписчик ждёт, после остановки Run события отбрасываются.
func (f *Feed) Listener() store.Listener {
	return func(ev store.Event) {
		if !relevant(ev) {
			return
		}
		select {
		case f.events <- ev:
		case <-f.done:
			f.logger.WithFields(log.Fields{
				"collection": ev.Collection,
				"op":         ev.Op,
				"id":         ev.ID,
			}).Warn("changefeed stopped, event dropped")
		}
	}
}

// Run обрабатывает события до отмены ctx и дочитывает уже поставленные в очередь.
func (f *Feed) Run(ctx context.Context) {
	f.logger.Info("changefeed started")
	for {
		select {
		case ev := <-f.events:
			f.handleLogged(ctx, ev)
		case <-ctx.Done():
			close(f.done)
			drainCtx := context.WithoutCancel(ctx)
			for {
				select {
				case ev := <-f.events:
					f.handleLogged(drainCtx, ev)
				default:
					f.logger.Info("changefeed stopped")
					return
				}
			}
		}
	}
}

func (f *Feed) handleLogged(ctx context.Context, ev store.Event) {
	if err := f.Handle(ctx, ev); err != nil {
		f.logger.WithError(err).WithFields(log.Fields{
			"collection": ev.Collection,
			"op":         ev.Op,
			"id":         ev.ID,
		}).Error("changefeed failed to record event")
	}
}

func relevant(ev store.Event) bool {
	if ev.Kind == store.EventSyncFailed {
		return true
	}
	return ev.Op != store.OpRead
}

// Handle синхронно записывает одно событие хранилища.
func (f *Feed) Handle(ctx context.Context, ev store.Event) error {
	if !relevant(ev) {
		return nil
	}

	var errs []error
	for _, msg := range f.messages(ev) {
		errs = append(errs, f.enqueue(ctx, msg))
	}
	if tl, ok := f.timelineEvent(ev); ok && f.timeline != nil {
		if err := f.timeline.Append(ctx, tl); err != nil {
			errs = append(errs, fmt.Errorf("append timeline: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (f *Feed) enqueue(ctx context.Context, msg domain.OutboxMessage) error {
	if f.outbox == nil {
		return nil
	}
	_, err := f.outbox.Enqueue(ctx, msg)
	f.metrics.RecordChangefeed(msg.EventType, err)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", msg.EventType, err)
	}
	return nil
}

func (f *Feed) messages(ev store.Event) []domain.OutboxMessage {
	if ev.Kind == store.EventSyncFailed {
		failure := SyncFailure{Collection: string(ev.Collection), Op: string(ev.Op), ID: ev.ID}
		if ev.Err != nil {
			failure.Error = ev.Err.Error()
		}
		return []domain.OutboxMessage{f.message(aggregateFor(ev.Collection), ev.ID, EventSyncFailed, failure, ev.At)}
	}

	switch ev.Collection {
	case store.CollectionOrders:
		switch ev.Op {
		case store.OpCreate:
			if ev.Order != nil {
				return []domain.OutboxMessage{f.message(aggregateOrder, ev.ID, EventOrderCreated, ev.Order, ev.At)}
			}
		case store.OpUpdate:
			if ev.Order == nil || ev.Previous == nil {
				return nil
			}
			out := []domain.OutboxMessage{
				f.message(aggregateOrder, ev.ID, EventOrderUpdated, OrderUpdate{Order: *ev.Order, Previous: *ev.Previous}, ev.At),
			}
			if ev.Order.Status != ev.Previous.Status {
				out = append(out, f.message(aggregateOrder, ev.ID, EventOrderStatusChanged,
					StatusChange{ID: ev.ID, From: ev.Previous.Status, To: ev.Order.Status}, ev.At))
			}
			return out
		case store.OpDelete:
			if ev.Previous != nil {
				return []domain.OutboxMessage{f.message(aggregateOrder, ev.ID, EventOrderDeleted, ev.Previous, ev.At)}
			}
		}
	case store.CollectionProducts:
		if ev.Product == nil {
			return nil
		}
		switch ev.Op {
		case store.OpCreate:
			return []domain.OutboxMessage{f.message(aggregateProduct, ev.ID, EventProductCreated, ev.Product, ev.At)}
		case store.OpDelete:
			return []domain.OutboxMessage{f.message(aggregateProduct, ev.ID, EventProductDeleted, ev.Product, ev.At)}
		}
	}
	return nil
}

func (f *Feed) message(aggregateType, aggregateID, eventType string, payload any, at time.Time) domain.OutboxMessage {
	if at.IsZero() {
		at = f.now()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("null")
		f.logger.WithError(err).WithField("event_type", eventType).Error("failed to encode changefeed payload")
	}
	return domain.OutboxMessage{
		ID:            f.newID(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
		CreatedAt:     at,
	}
}

func (f *Feed) timelineEvent(ev store.Event) (domain.TimelineEvent, bool) {
	if ev.Kind != store.EventChanged || ev.Collection != store.CollectionOrders {
		return domain.TimelineEvent{}, false
	}
	at := ev.At
	if at.IsZero() {
		at = f.now()
	}

	switch ev.Op {
	case store.OpCreate:
		if ev.Order == nil {
			return domain.TimelineEvent{}, false
		}
		return domain.TimelineEvent{
			OrderID:  ev.ID,
			Type:     domain.TimelineOrderSubmitted,
			To:       ev.Order.Status,
			Occurred: at,
		}, true
	case store.OpUpdate:
		if ev.Order == nil || ev.Previous == nil || ev.Order.Status == ev.Previous.Status {
			return domain.TimelineEvent{}, false
		}
		return domain.TimelineEvent{
			OrderID:  ev.ID,
			Type:     domain.TimelineStatusChanged,
			From:     ev.Previous.Status,
			To:       ev.Order.Status,
			Occurred: at,
		}, true
	case store.OpDelete:
		tl := domain.TimelineEvent{OrderID: ev.ID, Type: domain.TimelineOrderDeleted, Occurred: at}
		if ev.Previous != nil {
			tl.From = ev.Previous.Status
		}
		return tl, true
	}
	return domain.TimelineEvent{}, false
}

func aggregateFor(c store.Collection) string {
	switch c {
	case store.CollectionProducts:
		return aggregateProduct
	case store.CollectionUsers:
		return aggregateUser
	default:
		return aggregateOrder
	}
}
