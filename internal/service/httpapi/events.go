package httpapi

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
	"github.com/vladislavdragonenkov/crowngate/internal/store"
)

const eventStreamBuffer = 64

// StreamEvent — уведомление хранилища в формате потока /api/events.
type StreamEvent struct {
	Kind       store.EventKind  `json:"kind"`
	Collection store.Collection `json:"collection"`
	Op         store.Op         `json:"op"`
	ID         string           `json:"id,omitempty"`
	Order      *domain.Order    `json:"order,omitempty"`
	Product    *domain.Product  `json:"product,omitempty"`
	Error      string           `json:"error,omitempty"`
	Revision   uint64           `json:"revision"`
	At         time.Time        `json:"at"`
}

func newStreamEvent(ev store.Event) StreamEvent {
	out := StreamEvent{
		Kind:       ev.Kind,
		Collection: ev.Collection,
		Op:         ev.Op,
		ID:         ev.ID,
		Order:      ev.Order,
		Product:    ev.Product,
		Revision:   ev.Revision,
		At:         ev.At,
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	return out
}

// events держит подписку на хранилище, пока клиент подключён.
// Медленный клиент теряет события сверх буфера; хранилище не блокируется.
func (h *handler) events(c *gin.Context) {
	ch := make(chan store.Event, eventStreamBuffer)
	unsubscribe := h.store.Subscribe(func(ev store.Event) {
		select {
		case ch <- ev:
		default:
			h.logger.WithField("revision", ev.Revision).Debug("event stream client is slow, dropping event")
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.SSEvent("ready", gin.H{"mode": h.store.Mode()})
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-h.stop:
			return false
		case ev := <-ch:
			c.SSEvent(string(ev.Kind), newStreamEvent(ev))
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
