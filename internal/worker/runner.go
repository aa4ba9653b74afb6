package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/mtr002/Job-Runner/internal/actions"
	"github.com/mtr002/Job-Runner/internal/interfaces"
	"github.com/mtr002/Job-Runner/internal/jobs"
	"github.com/mtr002/Job-Runner/internal/logger"
	"github.com/mtr002/Job-Runner/internal/metrics"
	"github.com/mtr002/Job-Runner/internal/queue"
)

// ErrQueueUnavailable wraps transport errors from the queue. Run retries them.
var ErrQueueUnavailable = errors.New("queue unavailable")

// MalformedPolicy decides what Run does with a payload that does not decode.
type MalformedPolicy string

const (
	// Halt stops Run and returns the *jobs.MalformedJobError.
	Halt MalformedPolicy = "halt"
	// Skip dead-letters the payload and keeps going.
	Skip MalformedPolicy = "skip"
)

func ParseMalformedPolicy(s string) (MalformedPolicy, error) {
	switch p := MalformedPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case Halt, Skip:
		return p, nil
	case "":
		return Halt, nil
	default:
		return "", fmt.Errorf("unknown malformed-job policy %q (want %q or %q)", s, Halt, Skip)
	}
}

// State is where the runner is in its loop
type State int32

const (
	Stopped State = iota
	Waiting
	Processing
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Processing:
		return "processing"
	default:
		return "stopped"
	}
}

// Executor runs a resolved directive. *actions.Registry implements it.
type Executor interface {
	Execute(ctx context.Context, d jobs.Directive, timeout time.Duration) actions.Result
}

// ExecutionError is returned by ProcessOne when the job ran (or tried to) and failed.
// Run logs it and moves on.
type ExecutionError struct {
	Outcome *jobs.Outcome
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("job %s failed: %v", e.Outcome.JobID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type Config struct {
	PollTimeout time.Duration
	ExecTimeout time.Duration
	OnMalformed MalformedPolicy
}

func DefaultConfig() Config {
	return Config{
		PollTimeout: 5 * time.Second,
		ExecTimeout: time.Minute,
		OnMalformed: Halt,
	}
}

// Runner pulls one job at a time from the queue, executes it and records the outcome
type Runner struct {
	queue      interfaces.JobQueue
	executor   Executor
	sinks      []interfaces.OutcomeSink
	cfg        Config
	state      atomic.Int32
	newBackOff func() backoff.BackOff
}

type Option func(*Runner)

// WithSinks adds outcome sinks. Sink errors never stop the runner.
func WithSinks(sinks ...interfaces.OutcomeSink) Option {
	return func(r *Runner) {
		r.sinks = append(r.sinks, sinks...)
	}
}

// WithBackOff replaces the policy used between failed queue reads.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(r *Runner) {
		r.newBackOff = newBackOff
	}
}

// NewRunner creates a runner over an already connected queue. The runner does
// not close the queue.
func NewRunner(q interfaces.JobQueue, executor Executor, cfg Config, opts ...Option) *Runner {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultConfig().PollTimeout
	}
	if cfg.OnMalformed == "" {
		cfg.OnMalformed = Halt
	}

	r := &Runner{
		queue:    q,
		executor: executor,
		cfg:      cfg,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 500 * time.Millisecond
			bo.MaxInterval = 30 * time.Second
			bo.MaxElapsedTime = 0
			return bo
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) State() State {
	return State(r.state.Load())
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
	metrics.RunnerState.Set(float64(s - Waiting))
}

// Run loops until ctx is cancelled, in which case it returns nil, or until a
// malformed payload arrives under the Halt policy.
func (r *Runner) Run(ctx context.Context) error {
	logger.Logger.Info().
		Dur("poll_timeout", r.cfg.PollTimeout).
		Dur("exec_timeout", r.cfg.ExecTimeout).
		Str("on_malformed", string(r.cfg.OnMalformed)).
		Msg("Runner started")

	r.setState(Waiting)
	defer func() {
		r.setState(Stopped)
		logger.Logger.Info().Msg("Runner stopped")
	}()

	bo := r.newBackOff()

	for {
		if ctx.Err() != nil {
			return nil
		}

		_, err := r.ProcessOne(ctx)

		var (
			malformed *jobs.MalformedJobError
			execErr   *ExecutionError
		)
		switch {
		case err == nil, errors.Is(err, queue.ErrEmpty):
			bo.Reset()
		case ctx.Err() != nil:
			return nil
		case errors.As(err, &malformed):
			if r.cfg.OnMalformed == Halt {
				logger.Logger.Error().Err(err).Msg("Halting on malformed job")
				return err
			}
			bo.Reset()
		case errors.As(err, &execErr):
			bo.Reset()
		case errors.Is(err, ErrQueueUnavailable):
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				return err
			}
			logger.Logger.Warn().Err(err).Dur("retry_in", wait).Msg("Queue read failed")
			if !sleepCtx(ctx, wait) {
				return nil
			}
		default:
			return err
		}
	}
}

// ProcessOne waits for one payload and processes it. It returns the captured
// output, queue.ErrEmpty when the wait window passed with no job, a
// *jobs.MalformedJobError for undecodable payloads (dead-lettered first under
// Skip) and an *ExecutionError when the job's action failed.
func (r *Runner) ProcessOne(ctx context.Context) (string, error) {
	payload, err := r.queue.Pop(ctx, r.cfg.PollTimeout)
	if err != nil {
		if errors.Is(err, queue.ErrEmpty) {
			return "", queue.ErrEmpty
		}
		return "", fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}
	metrics.JobsDequeuedTotal.Inc()

	outcome, err := r.Process(ctx, payload)
	if outcome == nil {
		return "", err
	}
	return outcome.Output, err
}

// Process decodes and executes a single payload that has already left the queue.
func (r *Runner) Process(ctx context.Context, payload []byte) (*jobs.Outcome, error) {
	job, err := jobs.Decode(payload)
	if err != nil {
		metrics.MalformedJobsTotal.Inc()
		logger.Logger.Error().Err(err).Int("payload_bytes", len(payload)).Msg("Malformed job payload")
		if r.cfg.OnMalformed == Skip {
			if dlErr := r.queue.DeadLetter(detach(ctx), payload, err.Error()); dlErr != nil {
				logger.Logger.Error().Err(dlErr).Msg("Failed to dead-letter malformed job")
			}
		}
		return nil, err
	}

	r.setState(Processing)
	defer r.setState(Waiting)

	outcome, execErr := r.execute(ctx, job)
	r.record(ctx, outcome)

	if execErr != nil {
		return outcome, &ExecutionError{Outcome: outcome, Err: execErr}
	}
	return outcome, nil
}

func (r *Runner) execute(ctx context.Context, job *jobs.Job) (*jobs.Outcome, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	log := logger.WithJobID(job.ID)

	outcome := &jobs.Outcome{
		JobID:     job.ID,
		StartedAt: time.Now().UTC(),
	}

	directive, err := job.Directive()
	if err != nil {
		outcome.ExitCode = -1
		outcome.Error = err.Error()
		log.Error().Err(err).Str("command", job.Command).Msg("Job has no usable directive")
		metrics.JobsFailedTotal.WithLabelValues("none").Inc()
		return outcome, err
	}
	outcome.Directive = directive

	log.Info().Str("directive", directive.String()).Msg("Processing job")

	res := r.executor.Execute(ctx, directive, r.cfg.ExecTimeout)
	outcome.Duration = time.Since(outcome.StartedAt)
	outcome.Output = res.Output
	outcome.ExitCode = res.ExitCode

	label := directive.Name
	if errors.Is(res.Err, actions.ErrUnknownAction) {
		label = "unknown"
	}
	metrics.JobProcessingDuration.WithLabelValues(label).Observe(outcome.Duration.Seconds())

	if res.Err != nil {
		outcome.Error = res.Err.Error()
		metrics.JobsFailedTotal.WithLabelValues(label).Inc()
		log.Error().
			Err(res.Err).
			Str("directive", directive.String()).
			Str("output", res.Output).
			Int("exit_code", res.ExitCode).
			Dur("duration", outcome.Duration).
			Msg("Job failed")
		return outcome, res.Err
	}

	metrics.JobsCompletedTotal.WithLabelValues(label).Inc()
	log.Info().
		Str("directive", directive.String()).
		Str("output", res.Output).
		Dur("duration", outcome.Duration).
		Msg("Job completed")
	return outcome, nil
}

func (r *Runner) record(ctx context.Context, outcome *jobs.Outcome) {
	ctx, cancel := context.WithTimeout(detach(ctx), 5*time.Second)
	defer cancel()

	for _, sink := range r.sinks {
		if err := sink.Record(ctx, outcome); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(sink.Name()).Inc()
			logger.WithJobID(outcome.JobID).Error().
				Err(err).
				Str("sink", sink.Name()).
				Msg("Failed to record outcome")
		}
	}
}

// detach keeps ctx values but drops its cancellation so bookkeeping for a job
// that already ran still happens during shutdown.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
