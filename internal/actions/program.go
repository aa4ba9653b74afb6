package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"time"
)

// ExitError carries the exit status of a program that ran but did not exit 0.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Program runs one fixed binary with the job's arguments passed as argv.
// Nothing goes through a shell.
type Program struct {
	Path string
	// WaitDelay bounds how long Run waits for output pipes after the
	// process is killed on cancellation.
	WaitDelay time.Duration
}

func NewProgram(path string) (*Program, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: program path %q must be absolute", ErrInvalidArgs, path)
	}
	return &Program{Path: filepath.Clean(path), WaitDelay: 5 * time.Second}, nil
}

func (p *Program) Run(ctx context.Context, args []string, out io.Writer) error {
	cmd := exec.CommandContext(ctx, p.Path, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = p.WaitDelay

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", p.Path, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode(), Err: err}
	}

	return fmt.Errorf("failed to run %s: %w", p.Path, err)
}
