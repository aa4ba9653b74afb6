package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtr002/Job-Runner/internal/actions"
	"github.com/mtr002/Job-Runner/internal/interfaces"
	"github.com/mtr002/Job-Runner/internal/jobs"
	"github.com/mtr002/Job-Runner/internal/logger"
	"github.com/mtr002/Job-Runner/internal/queue"
	"github.com/mtr002/Job-Runner/internal/websocket"
)

const maxBodyBytes = 1 << 20

// QueueInspector is what the admin surface needs from the shared queue
type QueueInspector interface {
	Key() string
	Len(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	DeadLetters(ctx context.Context, limit int64) ([]queue.DeadLetter, error)
}

// Submitter enqueues validated jobs
type Submitter interface {
	SubmitJob(ctx context.Context, job *jobs.Job) (*jobs.Job, error)
}

// Dependencies wires the router. Runs, Hub and RunnerState are optional.
type Dependencies struct {
	Service     string
	Manager     Submitter
	Queue       QueueInspector
	Runs        interfaces.RunStore
	Hub         *websocket.Hub
	RunnerState func() string
}

type handlers struct {
	service string
	manager Submitter
	queue   QueueInspector
	runs    interfaces.RunStore
	state   func() string
}

type contextKey string

const correlationIDKey contextKey = "correlation_id"

func NewRouter(deps Dependencies) http.Handler {
	h := &handlers{
		service: deps.Service,
		manager: deps.Manager,
		queue:   deps.Queue,
		runs:    deps.Runs,
		state:   deps.RunnerState,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(correlationMiddleware)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.handleCreateJob)
		r.Get("/runs", h.handleListRuns)
		r.Get("/dead", h.handleListDeadLetters)
	})

	r.Get("/health", h.handleHealth)
	r.Get("/health/live", h.handleLiveness)
	r.Get("/health/ready", h.handleReadiness)
	r.Handle("/metrics", promhttp.Handler())

	if deps.Hub != nil {
		hub := deps.Hub
		r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			websocket.HandleWebSocket(hub, w, r)
		})
	}

	return r
}

func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		w.Header().Set("X-Correlation-ID", correlationID)

		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

type createJobResponse struct {
	ID    string `json:"id"`
	Queue string `json:"queue"`
}

func (h *handlers) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	log := logger.WithCorrelationID(getCorrelationID(r.Context()))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	job, err := jobs.Decode(body)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid job request")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err = h.manager.SubmitJob(r.Context(), job)
	if err != nil {
		if isRejection(err) {
			log.Warn().Err(err).Msg("Rejected job")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Msg("Failed to submit job")
		http.Error(w, "Failed to submit job", http.StatusInternalServerError)
		return
	}

	log.Info().Str("job_id", job.ID).Msg("Job accepted")
	writeJSON(w, http.StatusCreated, createJobResponse{ID: job.ID, Queue: h.queue.Key()})
}

func isRejection(err error) bool {
	return errors.Is(err, jobs.ErrMissingDirective) ||
		errors.Is(err, jobs.ErrInvalidDirective) ||
		errors.Is(err, actions.ErrUnknownAction) ||
		errors.Is(err, actions.ErrInvalidArgs)
}

func (h *handlers) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		http.Error(w, "Run log is not configured", http.StatusServiceUnavailable)
		return
	}

	runs, err := h.runs.ListRuns(r.Context(), queryLimit(r, 50))
	if err != nil {
		logger.WithCorrelationID(getCorrelationID(r.Context())).Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "Failed to retrieve runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*jobs.Outcome{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func (h *handlers) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	dead, err := h.queue.DeadLetters(r.Context(), int64(queryLimit(r, 50)))
	if err != nil {
		logger.WithCorrelationID(getCorrelationID(r.Context())).Error().Err(err).Msg("Failed to list dead letters")
		http.Error(w, "Failed to retrieve dead letters", http.StatusInternalServerError)
		return
	}
	if dead == nil {
		dead = []queue.DeadLetter{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dead_letters": dead,
		"count":        len(dead),
	})
}

func queryLimit(r *http.Request, fallback int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jobs.JSON.NewEncoder(w).Encode(v); err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to encode response")
	}
}
