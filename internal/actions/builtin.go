package actions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"
)

// MaxSleep bounds the sleep action regardless of the execution timeout.
const MaxSleep = 10 * time.Minute

// Echo writes its arguments joined by a space followed by a newline.
func Echo(_ context.Context, args []string, out io.Writer) error {
	_, err := io.WriteString(out, strings.Join(args, " ")+"\n")
	return err
}

// Uppercase is Echo with the text upper-cased.
func Uppercase(_ context.Context, args []string, out io.Writer) error {
	_, err := io.WriteString(out, strings.ToUpper(strings.Join(args, " "))+"\n")
	return err
}

// Sleep waits for the duration given as its only argument (e.g. "1500ms").
func Sleep(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: sleep takes exactly one duration", ErrInvalidArgs)
	}
	d, err := time.ParseDuration(args[0])
	if err != nil || d < 0 || d > MaxSleep {
		return fmt.Errorf("%w: bad duration %q", ErrInvalidArgs, args[0])
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	_, err = fmt.Fprintf(out, "slept %s\n", d)
	return err
}

// Hash writes the hex SHA-256 of its arguments joined by a space.
func Hash(_ context.Context, args []string, out io.Writer) error {
	sum := sha256.Sum256([]byte(strings.Join(args, " ")))
	_, err := io.WriteString(out, hex.EncodeToString(sum[:])+"\n")
	return err
}

// RegisterBuiltins adds echo, uppercase, sleep and hash to r.
func RegisterBuiltins(r *Registry) error {
	builtins := map[string]ActionFunc{
		"echo":      Echo,
		"uppercase": Uppercase,
		"sleep":     Sleep,
		"hash":      Hash,
	}
	for name, fn := range builtins {
		if err := r.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// NewDefaultRegistry returns the built-ins plus one exec action per entry of
// allow (action name to absolute program path). Programs are registered under
// their bare name, so a name that shadows a built-in fails with ErrDuplicate.
func NewDefaultRegistry(allow map[string]string) (*Registry, error) {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		return nil, err
	}
	for name, path := range allow {
		program, err := NewProgram(path)
		if err != nil {
			return nil, fmt.Errorf("failed to allow %s: %w", name, err)
		}
		if err := r.Register(name, program); err != nil {
			return nil, fmt.Errorf("failed to allow %s: %w", name, err)
		}
	}
	return r, nil
}
