package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthHandler_Healthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("fallback", NewFuncChecker("fallback", func(context.Context) error { return nil }))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Status != StatusHealthy || response.Version != "v1.0.0" {
		t.Fatalf("unexpected response: %+v", response)
	}
	if response.Checks["fallback"].Status != StatusHealthy {
		t.Fatalf("unexpected fallback check: %+v", response.Checks["fallback"])
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("ok", NewFuncChecker("ok", func(context.Context) error { return nil }))
	handler.RegisterChecker("fallback", NewFuncChecker("fallback", func(context.Context) error {
		return errors.New("disk is read-only")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Checks["fallback"].Message != "disk is read-only" {
		t.Fatalf("expected error message in check, got %+v", response.Checks["fallback"])
	}
}

func TestHealthHandler_DegradedStaysReady(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("remote", NewStatusChecker("remote", func(context.Context) (Status, string) {
		return StatusDegraded, "3 consecutive remote failures"
	}))

	if got := handler.Evaluate(context.Background()).Status; got != StatusDegraded {
		t.Fatalf("expected degraded, got %s", got)
	}

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("degraded service must stay ready, got %d", w.Code)
	}
}

func TestHealthHandler_NotReady(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("fallback", NewFuncChecker("fallback", func(context.Context) error {
		return errors.New("unreachable")
	}))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHealthHandler_ChecksRespectTimeout(t *testing.T) {
	handler := NewHandler("dev")
	handler.timeout = 20 * time.Millisecond
	handler.RegisterChecker("slow", NewFuncChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	response := handler.Evaluate(context.Background())
	if time.Since(start) > time.Second {
		t.Fatal("evaluation did not honour the timeout")
	}
	if response.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy after timeout, got %s", response.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("unexpected liveness response: %d %q", w.Code, w.Body.String())
	}
}
