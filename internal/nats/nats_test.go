package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtr002/Job-Runner/internal/jobs"
)

type fakeSubmitter struct {
	submitted []*jobs.Job
	err       error
}

func (f *fakeSubmitter) SubmitJob(_ context.Context, job *jobs.Job) (*jobs.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	if job.ID == "" {
		job.ID = "generated"
	}
	f.submitted = append(f.submitted, job)
	return job, nil
}

func TestSubmissionToJob(t *testing.T) {
	msg := &JobSubmissionMessage{
		ID:       "job-1",
		Action:   "echo",
		Args:     []string{"a", "b"},
		Metadata: map[string]string{"source": "nats"},
	}

	job := msg.ToJob()

	assert.Equal(t, "job-1", job.ID)
	d, err := job.Directive()
	require.NoError(t, err)
	assert.Equal(t, "echo", d.Name)
	assert.Equal(t, []string{"a", "b"}, d.Args)
	assert.Equal(t, "nats", job.Metadata["source"])
}

func TestNewOutcomeMessage(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	outcome := &jobs.Outcome{
		JobID:     "job-2",
		Directive: jobs.Directive{Name: "hash", Args: []string{"x"}},
		Output:    "abc\n",
		ExitCode:  0,
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
	}

	msg := NewOutcomeMessage(outcome)

	assert.Equal(t, "job-2", msg.JobID)
	assert.Equal(t, "hash", msg.Action)
	assert.Equal(t, []string{"x"}, msg.Args)
	assert.Equal(t, "abc\n", msg.Output)
	assert.Equal(t, int64(1500), msg.DurationMs)
	assert.Equal(t, "2024-03-01T12:00:00Z", msg.StartedAt)

	data, err := jobs.JSON.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"error"`)
}

func TestHandleMessageSubmitsJob(t *testing.T) {
	submitter := &fakeSubmitter{}
	server := &Server{manager: submitter}

	server.HandleMessage(&nats.Msg{
		Subject: JobSubmitSubject,
		Data:    []byte(`{"command":"echo hi","metadata":{"origin":"test"}}`),
	})

	require.Len(t, submitter.submitted, 1)
	assert.Equal(t, "echo hi", submitter.submitted[0].Command)
	assert.Equal(t, "test", submitter.submitted[0].Metadata["origin"])
}

func TestHandleMessageDropsInvalidSubmissions(t *testing.T) {
	submitter := &fakeSubmitter{}
	server := &Server{manager: submitter}

	server.HandleMessage(&nats.Msg{Subject: JobSubmitSubject, Data: []byte(`not json`)})
	assert.Empty(t, submitter.submitted)

	submitter.err = errors.New("unknown action")
	assert.NotPanics(t, func() {
		server.HandleMessage(&nats.Msg{Subject: JobSubmitSubject, Data: []byte(`{"action":"nope"}`)})
	})
	assert.Empty(t, submitter.submitted)
}
