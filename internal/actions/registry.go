package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/mtr002/Job-Runner/internal/jobs"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrInvalidArgs   = errors.New("invalid arguments")
	ErrDuplicate     = errors.New("action already registered")
)

// MaxOutputBytes caps how much combined output a single job keeps.
const MaxOutputBytes = 1 << 20

// Action is one allow-listed operation a job may name.
type Action interface {
	Run(ctx context.Context, args []string, out io.Writer) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, args []string, out io.Writer) error

func (f ActionFunc) Run(ctx context.Context, args []string, out io.Writer) error {
	return f(ctx, args, out)
}

// Result is what a single execution produced
type Result struct {
	Output   string
	ExitCode int
	Err      error
}

// Registry maps directive names to actions
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register adds an action under name. Names are case-sensitive.
func (r *Registry) Register(name string, action Action) error {
	if name == "" || action == nil {
		return fmt.Errorf("%w: empty name or nil action", ErrInvalidArgs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.actions[name] = action
	return nil
}

func (r *Registry) Lookup(name string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	action, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return action, nil
}

// Names returns the registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate reports whether the directive names a registered action.
func (r *Registry) Validate(d jobs.Directive) error {
	_, err := r.Lookup(d.Name)
	return err
}

// Execute runs the directive with its combined output captured. A timeout of
// zero leaves the execution bounded only by ctx. Panics inside an action are
// turned into errors.
func (r *Registry) Execute(ctx context.Context, d jobs.Directive, timeout time.Duration) Result {
	action, err := r.Lookup(d.Name)
	if err != nil {
		return Result{ExitCode: -1, Err: err}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out := &cappedBuffer{limit: MaxOutputBytes}
	err = runSafely(ctx, action, d.Args, out)

	result := Result{Output: out.String(), Err: err}
	if err != nil {
		result.ExitCode = exitCode(err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			result.Err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
	}
	return result
}

func runSafely(ctx context.Context, action Action, args []string, out io.Writer) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("action panicked: %v", rec)
		}
	}()
	return action.Run(ctx, args, out)
}

func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

// cappedBuffer keeps the first limit bytes written to it and reports every
// write as fully consumed so producers never block on it.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room < len(p) {
		if room > 0 {
			c.buf.Write(p[:room])
		}
		c.truncated = true
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) String() string {
	if c.truncated {
		return c.buf.String() + "\n[output truncated]\n"
	}
	return c.buf.String()
}
