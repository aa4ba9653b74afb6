package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mtr002/Job-Runner/internal/jobs"
	"github.com/mtr002/Job-Runner/internal/logger"
)

// Submitter is the part of jobs.Manager the bridge needs.
type Submitter interface {
	SubmitJob(ctx context.Context, job *jobs.Job) (*jobs.Job, error)
}

// Server bridges submissions published on NATS onto the Redis queue
type Server struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	manager Submitter
}

func NewServer(url string, manager Submitter) (*Server, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url, nats.Name("job-runner-bridge"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Server{
		conn:    conn,
		manager: manager,
	}, nil
}

func (s *Server) Subscribe() error {
	sub, err := s.conn.Subscribe(JobSubmitSubject, s.HandleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to NATS: %w", err)
	}

	s.sub = sub
	return nil
}

// HandleMessage enqueues one submission. Invalid submissions are logged and dropped.
func (s *Server) HandleMessage(msg *nats.Msg) {
	var jobMsg JobSubmissionMessage
	if err := jobs.JSON.Unmarshal(msg.Data, &jobMsg); err != nil {
		logger.Logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping undecodable submission")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := s.manager.SubmitJob(ctx, jobMsg.ToJob())
	if err != nil {
		logger.Logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Rejected submission")
		return
	}

	if msg.Reply != "" {
		if err := msg.Respond([]byte(job.ID)); err != nil {
			logger.WithJobID(job.ID).Warn().Err(err).Msg("Failed to reply to submission")
		}
	}
}

func (s *Server) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
