package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// componentStatus is one component's last report.
type componentStatus struct {
	ok     bool
	reason string
	at     time.Time
}

// healthState aggregates component reports for the /healthz endpoint.
// Components report as they start and as their backends come and go;
// anything that never reports is simply absent from the response.
type healthState struct {
	mu         sync.RWMutex
	version    string
	started    time.Time
	components map[string]componentStatus
}

var health = &healthState{
	started:    time.Now(),
	components: make(map[string]componentStatus),
}

// SetVersion sets the build version reported by /healthz.
func SetVersion(v string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.version = v
}

// SetHealthy marks a component as working.
func SetHealthy(component string) {
	report(component, true, "")
}

// SetUnhealthy marks a component as failing, with the reason shown in
// the /healthz response.
func SetUnhealthy(component, reason string) {
	report(component, false, reason)
}

func report(component string, ok bool, reason string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.components[component] = componentStatus{
		ok:     ok,
		reason: reason,
		at:     time.Now(),
	}
}

// HealthReport is the /healthz response body.
type HealthReport struct {
	Status     string            `json:"status"` // "ok" or "degraded"
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime"`
	Components map[string]string `json:"components,omitempty"`
}

// Health summarizes every reported component. Status is "ok" until any
// component reports a failure.
func Health() HealthReport {
	health.mu.RLock()
	defer health.mu.RUnlock()

	out := HealthReport{
		Status:     "ok",
		Version:    health.version,
		Uptime:     time.Since(health.started).Round(time.Second).String(),
		Components: make(map[string]string, len(health.components)),
	}
	for name, comp := range health.components {
		if comp.ok {
			out.Components[name] = "ok"
			continue
		}
		out.Status = "degraded"
		out.Components[name] = comp.reason
	}
	return out
}

// HealthHandler serves the aggregated component health as JSON, with
// a 503 status while any component is degraded.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := Health()

		w.Header().Set("Content-Type", "application/json")
		if out.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
