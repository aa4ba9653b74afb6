package jobs

import (
	"bytes"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// JSON is the codec used for every payload on the queue and on NATS.
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

var errEmptyPayload = errors.New("empty payload")

// Decode parses a queue payload into a Job. Any failure is a *MalformedJobError.
func Decode(payload []byte) (*Job, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, &MalformedJobError{Payload: payload, Err: errEmptyPayload}
	}
	if trimmed[0] != '{' {
		return nil, &MalformedJobError{Payload: payload, Err: fmt.Errorf("expected a JSON object, got %q", trimmed[0])}
	}

	var job Job
	if err := JSON.Unmarshal(trimmed, &job); err != nil {
		return nil, &MalformedJobError{Payload: payload, Err: err}
	}

	return &job, nil
}

// Encode serializes a job into its wire form.
func Encode(job *Job) ([]byte, error) {
	data, err := JSON.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

// EncodeOutcome serializes an outcome for sinks that carry JSON.
func EncodeOutcome(outcome *Outcome) ([]byte, error) {
	data, err := JSON.Marshal(outcome)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outcome: %w", err)
	}
	return data, nil
}
