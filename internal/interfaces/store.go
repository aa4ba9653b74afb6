package interfaces

import (
	"context"
	"time"

	"github.com/mtr002/Job-Runner/internal/jobs"
)

// JobQueue is the consumer side of the shared queue the runner drains
type JobQueue interface {
	// Pop waits at most timeout for a payload and returns queue.ErrEmpty when none arrived.
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	// DeadLetter parks a payload the runner will not process.
	DeadLetter(ctx context.Context, payload []byte, reason string) error
}

// OutcomeSink receives every outcome the runner produces
type OutcomeSink interface {
	Name() string
	Record(ctx context.Context, outcome *jobs.Outcome) error
}

// RunStore defines the run-log operations needed by the API
type RunStore interface {
	RecordOutcome(ctx context.Context, outcome *jobs.Outcome) error
	ListRuns(ctx context.Context, limit int) ([]*jobs.Outcome, error)
	Ping(ctx context.Context) error
}
