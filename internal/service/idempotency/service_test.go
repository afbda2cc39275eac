package idempotency

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
	"github.com/vladislavdragonenkov/crowngate/internal/metrics"
	"github.com/vladislavdragonenkov/crowngate/internal/storage/memory"
)

func newTestService(now *time.Time) (*Service, *memory.IdempotencyRepository) {
	repo := memory.NewIdempotencyRepositoryWithClock(func() time.Time { return *now })
	svc := NewService(repo, time.Hour, nil, metrics.NewIdempotencyMetrics(prometheus.NewRegistry()))
	svc.now = func() time.Time { return *now }
	return svc, repo
}

func TestService_FirstRequestProceeds(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	svc, repo := newTestService(&now)

	replay, err := svc.Begin(context.Background(), "key-1", []byte(`{"patientName":"A"}`))
	require.NoError(t, err)
	assert.Nil(t, replay)
	assert.Equal(t, 1, repo.Len())
}

func TestService_ReplaysCompletedResponse(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(&now)
	ctx := context.Background()
	body := []byte(`{"patientName":"A"}`)

	_, err := svc.Begin(ctx, "key-1", body)
	require.NoError(t, err)
	svc.Complete(ctx, "key-1", http.StatusCreated, []byte(`{"id":"ORD-006"}`), "pending")

	replay, err := svc.Begin(ctx, "key-1", body)
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, http.StatusCreated, replay.Status)
	assert.JSONEq(t, `{"id":"ORD-006"}`, string(replay.Body))
	assert.Equal(t, "pending", replay.SyncState)
}

func TestService_InProgressAndMismatch(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(&now)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "key-1", []byte(`{"a":1}`))
	require.NoError(t, err)

	_, err = svc.Begin(ctx, "key-1", []byte(`{"a":1}`))
	require.ErrorIs(t, err, ErrRequestInProgress)

	_, err = svc.Begin(ctx, "key-1", []byte(`{"a":2}`))
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
}

func TestService_ExpiredKeyIsReusable(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(&now)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "key-1", []byte(`{"a":1}`))
	require.NoError(t, err)
	svc.Complete(ctx, "key-1", http.StatusUnprocessableEntity, []byte(`{"error":"bad"}`), "")

	now = now.Add(2 * time.Hour)
	replay, err := svc.Begin(ctx, "key-1", []byte(`{"a":2}`))
	require.NoError(t, err)
	assert.Nil(t, replay)
}

func TestService_FailedResponseIsReplayed(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(&now)
	ctx := context.Background()

	_, err := svc.Begin(ctx, "key-1", []byte(`{}`))
	require.NoError(t, err)
	svc.Complete(ctx, "key-1", http.StatusUnprocessableEntity, []byte(`{"error":"bad"}`), "")

	replay, err := svc.Begin(ctx, "key-1", []byte(`{}`))
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, http.StatusUnprocessableEntity, replay.Status)
}

func TestService_RepositoryErrorIsWrapped(t *testing.T) {
	repo := &mockRepo{}
	repo.On("CreateProcessing", mock.Anything, "key-1", mock.Anything, mock.Anything).
		Return(domain.IdempotencyRecord{}, errors.New("db down"))

	svc := NewService(repo, 0, nil, nil)
	_, err := svc.Begin(context.Background(), "key-1", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve idempotency key")
	assert.Equal(t, DefaultTTL, svc.ttl)
}

func TestHashRequestIsStable(t *testing.T) {
	assert.Equal(t, HashRequest([]byte("x")), HashRequest([]byte("x")))
	assert.NotEqual(t, HashRequest([]byte("x")), HashRequest([]byte("y")))
	assert.Len(t, HashRequest(nil), 64)
}
