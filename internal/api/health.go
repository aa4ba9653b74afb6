package api

import (
	"context"
	"net/http"
	"time"

	"github.com/mtr002/Job-Runner/internal/metrics"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

type ReadinessResponse struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	Service    string    `json:"service"`
	Queue      string    `json:"queue"`
	QueueDepth int64     `json:"queue_depth"`
	Database   string    `json:"database"`
	Runner     string    `json:"runner,omitempty"`
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   h.service,
	})
}

func (h *handlers) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: time.Now(),
		Service:   h.service,
	})
}

// handleReadiness is ready when Redis answers and, if configured, the run log does too
func (h *handlers) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := ReadinessResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Service:   h.service,
		Queue:     "connected",
		Database:  "unknown",
	}
	if h.state != nil {
		response.Runner = h.state()
	}

	status := http.StatusOK
	if err := h.queue.Ping(ctx); err != nil {
		response.Queue = "disconnected"
		status = http.StatusServiceUnavailable
	} else if depth, err := h.queue.Len(ctx); err == nil {
		response.QueueDepth = depth
		metrics.QueueDepth.Set(float64(depth))
	}

	if h.runs != nil {
		response.Database = "connected"
		if err := h.runs.Ping(ctx); err != nil {
			response.Database = "disconnected"
			status = http.StatusServiceUnavailable
		}
	}

	if status != http.StatusOK {
		response.Status = "not ready"
	}
	writeJSON(w, status, response)
}
