package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

type capturedRequest struct {
	method string
	body   map[string]any
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, func() []capturedRequest) {
	t.Helper()

	var (
		mu   sync.Mutex
		reqs []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		mu.Lock()
		reqs = append(reqs, capturedRequest{method: r.Method, body: body})
		mu.Unlock()

		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), reqs...)
	}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Config{URL: url, Timeout: time.Second})
	require.NoError(t, err)
	return c
}

func TestClient_ReadDecodesRecords(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK,
		`[{"id":"ORD-1","toothNumber":14,"dueDate":"2023-11-01T18:30:00.000Z"},{"id":"ORD-2"}]`)
	client := newTestClient(t, srv.URL)

	records, err := client.Read(context.Background(), domain.SheetOrders)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ORD-1", records[0]["id"])
	assert.Equal(t, json.Number("14"), records[0]["toothNumber"])

	reqs := captured()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Equal(t, "read", reqs[0].body["action"])
	assert.Equal(t, "Orders", reqs[0].body["sheet"])
}

func TestClient_ReadRejectsNonArray(t *testing.T) {
	cases := map[string]string{
		"object": `{"error":"Sheet not found"}`,
		"null":   `null`,
		"html":   `<html>login required</html>`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _ := newTestServer(t, http.StatusOK, body)
			client := newTestClient(t, srv.URL)

			_, err := client.Read(context.Background(), domain.SheetProducts)
			assert.ErrorIs(t, err, domain.ErrMalformedResponse)
		})
	}
}

func TestClient_WritesSendActionSheetDataAndID(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK, `{"status":"ok"}`)
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, client.Create(ctx, domain.SheetProducts, domain.Product{ID: "PROD-1", Name: "Inlay"}))
	status := domain.OrderStatusMilling
	require.NoError(t, client.Update(ctx, domain.SheetOrders, "ORD-1", domain.OrderPatch{Status: &status}))
	require.NoError(t, client.Delete(ctx, domain.SheetOrders, "ORD-1"))

	reqs := captured()
	require.Len(t, reqs, 3)

	assert.Equal(t, "create", reqs[0].body["action"])
	assert.Equal(t, map[string]any{"id": "PROD-1", "name": "Inlay"}, reqs[0].body["data"])

	assert.Equal(t, "update", reqs[1].body["action"])
	assert.Equal(t, "ORD-1", reqs[1].body["id"])
	assert.Equal(t, map[string]any{"status": "Milling"}, reqs[1].body["data"])

	assert.Equal(t, "delete", reqs[2].body["action"])
	assert.Nil(t, reqs[2].body["data"])
}

func TestClient_Non2xxIsRemoteUnavailable(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusInternalServerError, `oops`)
	client := newTestClient(t, srv.URL)

	err := client.Delete(context.Background(), domain.SheetOrders, "ORD-1")
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
}

func TestClient_TransportFailure(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `[]`)
	url := srv.URL
	srv.Close()

	client := newTestClient(t, url)
	_, err := client.Read(context.Background(), domain.SheetUsers)
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
}

func TestClient_ContextCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	client := newTestClient(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Read(ctx, domain.SheetOrders)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRemoteUnavailable))
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}
