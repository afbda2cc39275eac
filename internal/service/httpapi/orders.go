package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
	"github.com/vladislavdragonenkov/crowngate/internal/service/idempotency"
	"github.com/vladislavdragonenkov/crowngate/internal/store"
)

const (
	// HeaderIdempotencyKey — ключ идемпотентности создания заказа.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderSyncState — состояние синхронизации записи с удалённой таблицей.
	HeaderSyncState = "X-Sync-State"
	// HeaderIdempotentReplay выставляется, когда ответ взят из сохранённого.
	HeaderIdempotentReplay = "Idempotent-Replayed"
)

// Значения X-Sync-State.
const (
	SyncStateLocal   = "local"
	SyncStatePending = "pending"
	SyncStateSynced  = "synced"
	SyncStateFailed  = "failed"
)

type handler struct {
	store     OrderStore
	timeline  domain.TimelineRepository
	idem      *idempotency.Service
	logger    *log.Entry
	keepAlive time.Duration
	stop      <-chan struct{}
}

func syncState(mode store.Mode, conf *store.Confirmation) string {
	if mode == store.ModeLocal || conf == nil {
		return SyncStateLocal
	}
	if conf.Pending() {
		return SyncStatePending
	}
	if conf.Err() != nil {
		return SyncStateFailed
	}
	return SyncStateSynced
}

func (h *handler) listOrders(c *gin.Context) {
	filter := domain.OrderFilter{
		Status:       domain.OrderStatus(c.Query("status")),
		DoctorName:   c.Query("doctor"),
		AssignedTech: c.Query("tech"),
		Priority:     domain.Priority(c.Query("priority")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		badRequest(c, "unknown status filter")
		return
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		badRequest(c, "unknown priority filter")
		return
	}

	orders := h.store.GetOrders(c.Request.Context())
	c.JSON(http.StatusOK, domain.FilterOrders(orders, filter))
}

// createOrder поддерживает Idempotency-Key: повтор с тем же телом получает сохранённый ответ.
func (h *handler) createOrder(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodySize))
	if err != nil {
		badRequest(c, "request body is too large or unreadable")
		return
	}

	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if key == "" || h.idem == nil {
		status, payload, state := h.submitOrder(c, body)
		if state != "" {
			c.Header(HeaderSyncState, state)
		}
		c.Data(status, gin.MIMEJSON, payload)
		return
	}

	replay, err := h.idem.Begin(c.Request.Context(), key, body)
	if err != nil {
		h.fail(c, err)
		return
	}
	if replay != nil {
		c.Header(HeaderIdempotentReplay, "true")
		if replay.SyncState != "" {
			c.Header(HeaderSyncState, replay.SyncState)
		}
		c.Data(replay.Status, gin.MIMEJSON, replay.Body)
		return
	}

	status, payload, state := h.submitOrder(c, body)
	h.idem.Complete(c.Request.Context(), key, status, payload, state)
	if state != "" {
		c.Header(HeaderSyncState, state)
	}
	c.Data(status, gin.MIMEJSON, payload)
}

// submitOrder выполняет создание и возвращает готовый ответ, чтобы его можно было сохранить.
func (h *handler) submitOrder(c *gin.Context, body []byte) (int, []byte, string) {
	var in domain.NewOrder
	if err := json.Unmarshal(body, &in); err != nil {
		return marshalResponse(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "malformed JSON body"})
	}
	if err := in.Validate(); err != nil {
		return marshalResponse(newErrorResponse(err))
	}

	order, conf, err := h.store.AddOrder(c.Request.Context(), in)
	if err != nil {
		status, resp := newErrorResponse(err)
		if status >= http.StatusInternalServerError {
			h.logger.WithError(err).Error("failed to add order")
		}
		return marshalResponse(status, resp)
	}

	h.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"doctor":   order.DoctorName,
		"priority": order.Priority,
	}).Info("order submitted")

	status, payload, _ := marshalResponse(http.StatusCreated, order)
	return status, payload, syncState(h.store.Mode(), conf)
}

func marshalResponse(status int, v any) (int, []byte, string) {
	payload, err := json.Marshal(v)
	if err != nil {
		payload = []byte(`{"error":"internal_error","message":"internal server error"}`)
		status = http.StatusInternalServerError
	}
	return status, payload, ""
}

func (h *handler) updateOrder(c *gin.Context) {
	var patch domain.OrderPatch
	if err := decodeJSON(c, &patch); err != nil {
		badRequest(c, "malformed JSON body")
		return
	}
	if err := patch.Validate(); err != nil {
		h.fail(c, err)
		return
	}

	order, conf, err := h.store.UpdateOrder(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header(HeaderSyncState, syncState(h.store.Mode(), conf))
	c.JSON(http.StatusOK, order)
}

func (h *handler) deleteOrder(c *gin.Context) {
	conf, err := h.store.DeleteOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header(HeaderSyncState, syncState(h.store.Mode(), conf))
	c.Status(http.StatusNoContent)
}

// orderTimeline отдаёт историю этапов. Для удалённого заказа история остаётся доступной.
func (h *handler) orderTimeline(c *gin.Context) {
	id := c.Param("id")
	var events []domain.TimelineEvent
	if h.timeline != nil {
		var err error
		events, err = h.timeline.List(c.Request.Context(), id)
		if err != nil {
			h.fail(c, err)
			return
		}
	}
	if len(events) == 0 && !h.orderKnown(id) {
		h.fail(c, domain.ErrOrderNotFound)
		return
	}
	if events == nil {
		events = []domain.TimelineEvent{}
	}
	c.JSON(http.StatusOK, events)
}

func (h *handler) orderKnown(id string) bool {
	for _, o := range h.store.Snapshot().Orders {
		if o.ID == id {
			return true
		}
	}
	return false
}

func decodeJSON(c *gin.Context, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodySize))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
