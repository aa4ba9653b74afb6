package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mtr002/Job-Runner/internal/logger"
	"github.com/mtr002/Job-Runner/internal/metrics"
)

// Enqueuer is the producer side of the shared queue.
type Enqueuer interface {
	Push(ctx context.Context, payload []byte) error
}

// Manager validates jobs and hands them to the shared queue
type Manager struct {
	queue    Enqueuer
	validate func(Directive) error
}

// NewManager creates a new job manager. validate may be nil, in which case any
// directive that resolves is accepted and the runner has the final word.
func NewManager(queue Enqueuer, validate func(Directive) error) *Manager {
	return &Manager{
		queue:    queue,
		validate: validate,
	}
}

// SubmitJob assigns an ID to the job if it has none and pushes it onto the queue
func (m *Manager) SubmitJob(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, ErrMissingDirective
	}

	directive, err := job.Directive()
	if err != nil {
		return nil, err
	}
	if m.validate != nil {
		if err := m.validate(directive); err != nil {
			return nil, err
		}
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.EnqueuedAt == nil {
		now := time.Now().UTC()
		job.EnqueuedAt = &now
	}

	payload, err := Encode(job)
	if err != nil {
		return nil, err
	}

	if err := m.queue.Push(ctx, payload); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	metrics.JobsEnqueuedTotal.Inc()
	log := logger.WithJobID(job.ID)
	log.Info().Str("directive", directive.String()).Msg("Job submitted successfully")
	return job, nil
}

// SubmitCommand enqueues a job built from command text, e.g. "echo hi"
func (m *Manager) SubmitCommand(ctx context.Context, command string) (*Job, error) {
	return m.SubmitJob(ctx, &Job{Command: command})
}
