package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mtr002/Job-Runner/internal/jobs"
)

// Client publishes on the job subjects
type Client struct {
	conn *nats.Conn
}

func NewClient(url string) (*Client, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url, nats.Name("job-runner"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Client{conn: conn}, nil
}

func (c *Client) Name() string {
	return "nats"
}

// Record publishes the outcome on JobOutcomeSubject
func (c *Client) Record(_ context.Context, outcome *jobs.Outcome) error {
	return c.PublishOutcome(outcome)
}

func (c *Client) PublishOutcome(outcome *jobs.Outcome) error {
	data, err := jobs.JSON.Marshal(NewOutcomeMessage(outcome))
	if err != nil {
		return fmt.Errorf("failed to marshal job outcome message: %w", err)
	}

	if err := c.conn.Publish(JobOutcomeSubject, data); err != nil {
		return fmt.Errorf("failed to publish job outcome: %w", err)
	}

	return nil
}

func (c *Client) PublishJobSubmission(msg *JobSubmissionMessage) error {
	data, err := jobs.JSON.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal job submission message: %w", err)
	}

	if err := c.conn.Publish(JobSubmitSubject, data); err != nil {
		return fmt.Errorf("failed to publish job submission: %w", err)
	}

	return c.conn.Flush()
}

func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

func NewOutcomeMessage(outcome *jobs.Outcome) *JobOutcomeMessage {
	return &JobOutcomeMessage{
		JobID:      outcome.JobID,
		Action:     outcome.Directive.Name,
		Args:       outcome.Directive.Args,
		Output:     outcome.Output,
		Error:      outcome.Error,
		ExitCode:   outcome.ExitCode,
		StartedAt:  outcome.StartedAt.Format(time.RFC3339Nano),
		DurationMs: outcome.Duration.Milliseconds(),
	}
}

// ToJob converts a submission into the job that goes on the queue
func (m *JobSubmissionMessage) ToJob() *jobs.Job {
	return &jobs.Job{
		ID:       m.ID,
		Command:  m.Command,
		Action:   m.Action,
		Args:     m.Args,
		Metadata: m.Metadata,
	}
}
