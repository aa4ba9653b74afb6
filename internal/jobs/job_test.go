package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommandJob(t *testing.T) {
	job, err := Decode([]byte(`{"command": "echo hi"}`))
	require.NoError(t, err)

	directive, err := job.Directive()
	require.NoError(t, err)
	assert.Equal(t, "echo", directive.Name)
	assert.Equal(t, []string{"hi"}, directive.Args)
	assert.Equal(t, "echo hi", directive.String())
}

func TestDecodeStructuredJob(t *testing.T) {
	payload := `{"id":"j-1","action":"uppercase","args":["a","b c"],"command":"ignored","metadata":{"source":"test"}}`
	job, err := Decode([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, "j-1", job.ID)
	assert.Equal(t, "test", job.Metadata["source"])

	directive, err := job.Directive()
	require.NoError(t, err)
	assert.Equal(t, Directive{Name: "uppercase", Args: []string{"a", "b c"}}, directive)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"whitespace", "   \n"},
		{"not json", "echo hi"},
		{"array", `["echo","hi"]`},
		{"truncated", `{"command": "echo`},
		{"wrong type", `{"command": 42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := Decode([]byte(tt.payload))
			assert.Nil(t, job)

			var malformed *MalformedJobError
			require.True(t, errors.As(err, &malformed), "expected MalformedJobError, got %v", err)
			assert.Equal(t, tt.payload, string(malformed.Payload))
			assert.Error(t, malformed.Unwrap())
		})
	}
}

func TestDirectiveMissing(t *testing.T) {
	for _, payload := range []string{`{}`, `{"command": "   "}`, `{"metadata": {"a": "b"}}`} {
		job, err := Decode([]byte(payload))
		require.NoError(t, err)

		_, err = job.Directive()
		assert.ErrorIs(t, err, ErrMissingDirective, payload)
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"echo hi", []string{"echo", "hi"}},
		{"  echo   hi  there ", []string{"echo", "hi", "there"}},
		{`echo "hello world"`, []string{"echo", "hello world"}},
		{`echo "say \"hi\""`, []string{"echo", `say "hi"`}},
		{`echo ""`, []string{"echo", ""}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SplitCommand(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := SplitCommand(`echo "unterminated`)
	assert.ErrorIs(t, err, ErrInvalidDirective)
}

type fakeEnqueuer struct {
	payloads [][]byte
	err      error
}

func (f *fakeEnqueuer) Push(_ context.Context, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func TestManagerSubmitJob(t *testing.T) {
	q := &fakeEnqueuer{}
	m := NewManager(q, nil)

	job, err := m.SubmitCommand(context.Background(), "echo hi")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	require.NotNil(t, job.EnqueuedAt)
	require.Len(t, q.payloads, 1)

	decoded, err := Decode(q.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, job.ID, decoded.ID)
	assert.Equal(t, "echo hi", decoded.Command)
}

func TestManagerKeepsProvidedID(t *testing.T) {
	q := &fakeEnqueuer{}
	m := NewManager(q, nil)

	job, err := m.SubmitJob(context.Background(), &Job{ID: "fixed", Action: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", job.ID)
}

func TestManagerRejects(t *testing.T) {
	errNope := errors.New("nope")
	q := &fakeEnqueuer{}
	m := NewManager(q, func(d Directive) error {
		if d.Name == "rm" {
			return errNope
		}
		return nil
	})

	_, err := m.SubmitJob(context.Background(), &Job{})
	assert.ErrorIs(t, err, ErrMissingDirective)

	_, err = m.SubmitCommand(context.Background(), "rm -rf /")
	assert.ErrorIs(t, err, errNope)

	_, err = m.SubmitJob(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMissingDirective)

	assert.Empty(t, q.payloads)
}

func TestManagerQueueError(t *testing.T) {
	errDown := errors.New("redis down")
	m := NewManager(&fakeEnqueuer{err: errDown}, nil)

	_, err := m.SubmitCommand(context.Background(), "echo hi")
	assert.ErrorIs(t, err, errDown)
}
