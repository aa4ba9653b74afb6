package actions

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtr002/Job-Runner/internal/jobs"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewDefaultRegistry(nil)
	require.NoError(t, err)
	return r
}

func TestBuiltins(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		directive jobs.Directive
		want      string
	}{
		{"echo", jobs.Directive{Name: "echo", Args: []string{"hi"}}, "hi\n"},
		{"echo no args", jobs.Directive{Name: "echo"}, "\n"},
		{"uppercase", jobs.Directive{Name: "uppercase", Args: []string{"hello", "world"}}, "HELLO WORLD\n"},
		{"hash", jobs.Directive{Name: "hash", Args: []string{"abc"}}, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad\n"},
		{"sleep", jobs.Directive{Name: "sleep", Args: []string{"1ms"}}, "slept 1ms\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Execute(ctx, tt.directive, time.Second)
			require.NoError(t, res.Err)
			assert.Equal(t, tt.want, res.Output)
			assert.Equal(t, 0, res.ExitCode)
		})
	}
}

func TestUnknownActionNeverRuns(t *testing.T) {
	r := newTestRegistry(t)

	res := r.Execute(context.Background(), jobs.Directive{Name: "rm", Args: []string{"-rf", "/"}}, time.Second)
	assert.ErrorIs(t, res.Err, ErrUnknownAction)
	assert.Empty(t, res.Output)
	assert.Equal(t, -1, res.ExitCode)
	assert.ErrorIs(t, r.Validate(jobs.Directive{Name: "rm"}), ErrUnknownAction)
	assert.NoError(t, r.Validate(jobs.Directive{Name: "echo"}))
}

func TestSleepArgs(t *testing.T) {
	r := newTestRegistry(t)

	for _, args := range [][]string{nil, {"soon"}, {"-1s"}, {"1s", "2s"}, {"1h"}} {
		res := r.Execute(context.Background(), jobs.Directive{Name: "sleep", Args: args}, time.Second)
		assert.ErrorIs(t, res.Err, ErrInvalidArgs, "args %v", args)
	}
}

func TestExecuteTimeout(t *testing.T) {
	r := newTestRegistry(t)

	start := time.Now()
	res := r.Execute(context.Background(), jobs.Directive{Name: "sleep", Args: []string{"5s"}}, 20*time.Millisecond)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRegisterDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Register("echo", ActionFunc(Echo))
	assert.ErrorIs(t, err, ErrDuplicate)

	assert.Equal(t, []string{"echo", "hash", "sleep", "uppercase"}, r.Names())
}

func TestPanicBecomesError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("boom", ActionFunc(func(context.Context, []string, io.Writer) error {
		panic("kaboom")
	})))

	res := r.Execute(context.Background(), jobs.Directive{Name: "boom"}, 0)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "kaboom")
}

func TestOutputIsCapped(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("flood", ActionFunc(func(_ context.Context, _ []string, out io.Writer) error {
		chunk := []byte(strings.Repeat("x", 4096))
		for i := 0; i < (MaxOutputBytes/len(chunk))+10; i++ {
			if _, err := out.Write(chunk); err != nil {
				return err
			}
		}
		return nil
	})))

	res := r.Execute(context.Background(), jobs.Directive{Name: "flood"}, 0)
	require.NoError(t, res.Err)
	assert.True(t, strings.HasSuffix(res.Output, "[output truncated]\n"))
	assert.LessOrEqual(t, len(res.Output), MaxOutputBytes+64)
}

func TestProgram(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}

	r, err := NewDefaultRegistry(map[string]string{"sh": "/bin/sh"})
	require.NoError(t, err)

	res := r.Execute(context.Background(), jobs.Directive{Name: "sh", Args: []string{"-c", "echo out; echo err 1>&2"}}, 5*time.Second)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Output, "out\n")
	assert.Contains(t, res.Output, "err\n")

	res = r.Execute(context.Background(), jobs.Directive{Name: "sh", Args: []string{"-c", "echo partial; exit 3"}}, 5*time.Second)
	var exitErr *ExitError
	require.True(t, errors.As(res.Err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "partial\n", res.Output)
}

func TestProgramMissingBinary(t *testing.T) {
	r, err := NewDefaultRegistry(map[string]string{"ghost": "/nonexistent/bin/ghost"})
	require.NoError(t, err)

	res := r.Execute(context.Background(), jobs.Directive{Name: "ghost"}, time.Second)
	require.Error(t, res.Err)
	assert.Equal(t, -1, res.ExitCode)
}

func TestNewProgramRequiresAbsolutePath(t *testing.T) {
	_, err := NewProgram("uptime")
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, err = NewDefaultRegistry(map[string]string{"up": "uptime"})
	assert.ErrorIs(t, err, ErrInvalidArgs)

}

func TestAllowedProgramCannotShadowBuiltin(t *testing.T) {
	_, err := NewDefaultRegistry(map[string]string{"echo": "/bin/echo"})
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "failed to allow echo")

	r, err := NewDefaultRegistry(map[string]string{"sysecho": "/bin/echo"})
	require.NoError(t, err)
	assert.NoError(t, r.Validate(jobs.Directive{Name: "sysecho"}))
	assert.NoError(t, r.Validate(jobs.Directive{Name: "echo"}))
}
