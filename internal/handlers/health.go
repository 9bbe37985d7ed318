package handlers

import (
	"context"
	"net/http"
	"os"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Region    string           `json:"region,omitempty"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health pings the mailbox backend and, when configured, Redis.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	run := func(name string, ping func(context.Context) error) {
		start := time.Now()
		if err := ping(ctx); err != nil {
			h.logger.Warn().Err(err).Str("check", name).Msg("health check failed")
			checks[name] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
			return
		}
		checks[name] = Check{Status: "pass", Latency: time.Since(start).String()}
	}

	run("mailbox", h.relay.Mailboxes.Ping)
	if h.redis != nil {
		run("redis", h.redis.Ping)
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Region:    os.Getenv("FLY_REGION"),
		Instance:  os.Getenv("FLY_ALLOC_ID"),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RootResponse represents the API info response.
type RootResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// Root describes the API.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "Agora relay",
		Version: version,
		Endpoints: []string{
			"POST /v1/register",
			"POST /v1/send",
			"GET /v1/peers",
			"GET /v1/messages",
			"DELETE /v1/disconnect",
			"GET /v1/stats",
		},
	})
}
