package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

const (
	idempotencyHeader = "Idempotency-Key"
	syncStateHeader   = "X-Sync-State"
	transportError    = "transport_error"
)

// orderAPI — HTTP-операции над заказами, которыми пользуются сценарии.
type orderAPI interface {
	CreateOrder(ctx context.Context, in domain.NewOrder, key string) (domain.Order, apiResult, error)
	UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (apiResult, error)
	DeleteOrder(ctx context.Context, id string) (apiResult, error)
}

type apiResult struct {
	Status    int
	SyncState string
}

func (r apiResult) code() string {
	if r.Status == 0 {
		return transportError
	}
	return strconv.Itoa(r.Status)
}

type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, concurrency int) *apiClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = concurrency
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: transport},
	}
}

func (c *apiClient) CreateOrder(ctx context.Context, in domain.NewOrder, key string) (domain.Order, apiResult, error) {
	var order domain.Order
	res, err := c.send(ctx, http.MethodPost, "/api/orders", in, key, &order)
	return order, res, err
}

func (c *apiClient) UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch) (apiResult, error) {
	return c.send(ctx, http.MethodPatch, "/api/orders/"+id, patch, "", nil)
}

func (c *apiClient) DeleteOrder(ctx context.Context, id string) (apiResult, error) {
	return c.send(ctx, http.MethodDelete, "/api/orders/"+id, nil, "", nil)
}

func (c *apiClient) send(ctx context.Context, method, path string, body any, key string, out any) (apiResult, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apiResult{}, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return apiResult{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apiResult{}, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	res := apiResult{Status: resp.StatusCode, SyncState: resp.Header.Get(syncStateHeader)}
	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return res, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return res, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return res, nil
}
