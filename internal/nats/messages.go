package nats

const (
	JobSubmitSubject  = "jobs.submit"
	JobOutcomeSubject = "jobs.outcomes"
)

// JobSubmissionMessage asks the bridge to enqueue a job. Either Command or
// Action must be set.
type JobSubmissionMessage struct {
	ID       string            `json:"id,omitempty"`
	Command  string            `json:"command,omitempty"`
	Action   string            `json:"action,omitempty"`
	Args     []string          `json:"args,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type JobOutcomeMessage struct {
	JobID      string   `json:"job_id"`
	Action     string   `json:"action"`
	Args       []string `json:"args,omitempty"`
	Output     string   `json:"output"`
	Error      string   `json:"error,omitempty"`
	ExitCode   int      `json:"exit_code"`
	StartedAt  string   `json:"started_at"`
	DurationMs int64    `json:"duration_ms"`
}
