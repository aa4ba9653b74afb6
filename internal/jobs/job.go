package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMissingDirective is returned when a job names no action at all.
	ErrMissingDirective = errors.New("job has no directive")
	// ErrInvalidDirective is returned when the command text cannot be split into fields.
	ErrInvalidDirective = errors.New("invalid directive")
)

// MalformedJobError reports a payload that does not decode as a job.
type MalformedJobError struct {
	Payload []byte
	Err     error
}

func (e *MalformedJobError) Error() string {
	return fmt.Sprintf("malformed job payload (%d bytes): %v", len(e.Payload), e.Err)
}

func (e *MalformedJobError) Unwrap() error {
	return e.Err
}

// Job represents a job descriptor as it travels through the queue
type Job struct {
	ID         string            `json:"id,omitempty"`
	Command    string            `json:"command,omitempty"`
	Action     string            `json:"action,omitempty"`
	Args       []string          `json:"args,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	EnqueuedAt *time.Time        `json:"enqueued_at,omitempty"`
}

// Directive is the resolved action name and its arguments.
type Directive struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

func (d Directive) String() string {
	if len(d.Args) == 0 {
		return d.Name
	}
	return d.Name + " " + strings.Join(d.Args, " ")
}

// String returns a string representation of the job
func (j *Job) String() string {
	return fmt.Sprintf("Job{ID: %s, Action: %s, Command: %q}", j.ID, j.Action, j.Command)
}

// Directive resolves what the job asks for. The structured action field wins
// over the command text.
func (j *Job) Directive() (Directive, error) {
	if name := strings.TrimSpace(j.Action); name != "" {
		return Directive{Name: name, Args: j.Args}, nil
	}

	fields, err := SplitCommand(j.Command)
	if err != nil {
		return Directive{}, err
	}
	if len(fields) == 0 {
		return Directive{}, ErrMissingDirective
	}

	return Directive{Name: fields[0], Args: fields[1:]}, nil
}

// SplitCommand splits command text on whitespace. Double quotes group words
// and a backslash escapes the next character inside quotes.
func SplitCommand(command string) ([]string, error) {
	var (
		fields  []string
		current strings.Builder
		inField bool
		quoted  bool
		escaped bool
	)

	for _, r := range command {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '"':
			quoted = !quoted
			inField = true
		case !quoted && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
			if inField {
				fields = append(fields, current.String())
				current.Reset()
				inField = false
			}
		default:
			current.WriteRune(r)
			inField = true
		}
	}

	if quoted || escaped {
		return nil, fmt.Errorf("%w: unterminated quote in %q", ErrInvalidDirective, command)
	}
	if inField {
		fields = append(fields, current.String())
	}

	return fields, nil
}

// Outcome is the record of one executed job
type Outcome struct {
	JobID     string        `json:"job_id"`
	Directive Directive     `json:"directive"`
	Output    string        `json:"output"`
	Error     string        `json:"error,omitempty"`
	ExitCode  int           `json:"exit_code"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Succeeded returns true if the action finished without error
func (o *Outcome) Succeeded() bool {
	return o.Error == ""
}

func (o *Outcome) String() string {
	return fmt.Sprintf("Outcome{JobID: %s, Directive: %s, ExitCode: %d, Error: %q}",
		o.JobID, o.Directive, o.ExitCode, o.Error)
}
