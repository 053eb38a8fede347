package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func resetHealth() {
	health = &healthState{
		started:    time.Now(),
		components: make(map[string]componentStatus),
	}
}

func TestHealthAllOk(t *testing.T) {
	resetHealth()
	SetVersion("1.0.0")

	SetHealthy("storage")
	SetHealthy("worker_pool")

	out := Health()

	if out.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", out.Status)
	}

	if len(out.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(out.Components))
	}

	if out.Components["storage"] != "ok" {
		t.Errorf("unexpected storage status: %s", out.Components["storage"])
	}

	if out.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", out.Version)
	}
}

func TestHealthDegraded(t *testing.T) {
	resetHealth()

	SetHealthy("storage")
	SetUnhealthy("llm", "endpoint unreachable")

	out := Health()

	if out.Status != "degraded" {
		t.Errorf("expected status 'degraded', got '%s'", out.Status)
	}

	if out.Components["llm"] != "endpoint unreachable" {
		t.Errorf("unexpected llm status: %s", out.Components["llm"])
	}
}

func TestHealthRecovery(t *testing.T) {
	resetHealth()

	SetUnhealthy("llm", "endpoint unreachable")
	SetHealthy("llm")

	out := Health()

	if out.Status != "ok" {
		t.Errorf("expected status 'ok' after recovery, got '%s'", out.Status)
	}

	if out.Components["llm"] != "ok" {
		t.Errorf("unexpected llm status: %s", out.Components["llm"])
	}
}

func TestHealthHandler(t *testing.T) {
	resetHealth()
	SetVersion("1.0.0")

	SetHealthy("storage")

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	HealthHandler()(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var out HealthReport
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if out.Status != "ok" {
		t.Errorf("expected ok status, got %s", out.Status)
	}

	if out.Uptime == "" {
		t.Error("expected a non-empty uptime")
	}
}

func TestHealthHandlerDegraded(t *testing.T) {
	resetHealth()

	SetUnhealthy("storage", "gone")

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	HealthHandler()(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}
