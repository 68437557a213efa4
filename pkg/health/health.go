package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Source exposes the publisher state the health endpoints report on
type Source interface {
	IsConnected() bool
	ConnectionState() string
	LastPublish() (time.Time, bool)
}

// Checker provides health check functionality for agents
type Checker struct {
	source Source
	logger *slog.Logger
}

// NewChecker creates a new health checker with the given dependencies
func NewChecker(source Source, logger *slog.Logger) *Checker {
	return &Checker{
		source: source,
		logger: logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Services  *Services `json:"services,omitempty"`
}

// Services represents the status of external dependencies
type Services struct {
	MQTT        string `json:"mqtt"`
	LastPublish string `json:"last_publish,omitempty"`
}

// HandlerFunc returns an HTTP handler function for liveness checks.
// Returns 200 if process is alive without checking dependencies.
func (h *Checker) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		}

		h.write(w, http.StatusOK, response)
	}
}

// DetailedHandlerFunc returns a handler that reports the broker session.
// A disconnected publisher answers 503 so orchestrators can see the outage.
func (h *Checker) DetailedHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := &Services{
			MQTT: "unknown",
		}

		if h.source != nil {
			services.MQTT = h.source.ConnectionState()
			if last, ok := h.source.LastPublish(); ok {
				services.LastPublish = last.Format(time.RFC3339Nano)
			}
		}

		// Determine overall status
		status := "healthy"
		statusCode := http.StatusOK

		if h.source == nil || !h.source.IsConnected() {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Services:  services,
		}

		h.write(w, statusCode, response)
	}
}

func (h *Checker) write(w http.ResponseWriter, statusCode int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}

// NewServeMux registers the health endpoints
func (h *Checker) NewServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.HandlerFunc())
	mux.HandleFunc("/health/detailed", h.DetailedHandlerFunc())
	return mux
}
