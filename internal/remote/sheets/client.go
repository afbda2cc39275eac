// Package sheets реализует domain.Backend поверх веб-приложения Google Apps Script,
// которое проксирует операции над листами таблицы.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	// maxResponseBytes ограничивает размер ответа бэкенда.
	maxResponseBytes = 16 << 20
)

// Action — операция, которую выполняет скрипт таблицы.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// request — тело POST-запроса к скрипту.
type request struct {
	Action Action       `json:"action"`
	Sheet  domain.Sheet `json:"sheet"`
	Data   any          `json:"data"`
	ID     string       `json:"id,omitempty"`
}

// Config — параметры клиента.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client — HTTP-клиент удалённой таблицы. Безопасен для конкурентного использования.
type Client struct {
	url    string
	http   *http.Client
	logger *log.Entry
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет http.Client (тесты, кастомный транспорт).
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.http = c
	}
}

// WithLogger задаёт logger клиента.
func WithLogger(logger *log.Entry) Option {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient создаёт клиента. Пустой URL считается ошибкой: режим local выбирается отсутствием клиента.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("sheets: endpoint url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		url:    cfg.URL,
		http:   &http.Client{Timeout: timeout},
		logger: log.WithField("component", "sheets-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Read возвращает строки листа. Если ответ не JSON-массив объектов, возвращается ErrMalformedResponse.
func (c *Client) Read(ctx context.Context, sheet domain.Sheet) ([]domain.Record, error) {
	body, err := c.do(ctx, request{Action: ActionRead, Sheet: sheet})
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var records []domain.Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("read %s: %w: %v", sheet, domain.ErrMalformedResponse, err)
	}
	if records == nil {
		// "null" тоже не массив.
		return nil, fmt.Errorf("read %s: %w: null body", sheet, domain.ErrMalformedResponse)
	}
	return records, nil
}

// Create добавляет строку в лист.
func (c *Client) Create(ctx context.Context, sheet domain.Sheet, data any) error {
	_, err := c.do(ctx, request{Action: ActionCreate, Sheet: sheet, Data: data})
	return err
}

// Update обновляет строку с идентификатором id.
func (c *Client) Update(ctx context.Context, sheet domain.Sheet, id string, patch any) error {
	_, err := c.do(ctx, request{Action: ActionUpdate, Sheet: sheet, Data: patch, ID: id})
	return err
}

// Delete удаляет строку с идентификатором id.
func (c *Client) Delete(ctx context.Context, sheet domain.Sheet, id string) error {
	_, err := c.do(ctx, request{Action: ActionDelete, Sheet: sheet, ID: id})
	return err
}

func (c *Client) do(ctx context.Context, payload request) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", payload.Action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", payload.Action, err)
	}
	// Apps Script не отвечает на CORS preflight для application/json, поэтому text/plain.
	req.Header.Set("Content-Type", "text/plain;charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %v", payload.Action, payload.Sheet, domain.ErrRemoteUnavailable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.WithError(closeErr).Debug("failed to close response body")
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w: %v", payload.Action, payload.Sheet, domain.ErrRemoteUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: unexpected status %d: %w", payload.Action, payload.Sheet, resp.StatusCode, domain.ErrRemoteUnavailable)
	}

	c.logger.WithFields(log.Fields{
		"action": payload.Action,
		"sheet":  payload.Sheet,
		"id":     payload.ID,
		"bytes":  len(data),
	}).Debug("sheets call completed")
	return data, nil
}

var _ domain.Backend = (*Client)(nil)
