// Package subprocess runs speech commands with stdin wired before start
// and kills them, with any children, when their context ends.
package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrCancelled is returned when a command was killed by its context.
var ErrCancelled = errors.New("subprocess cancelled")

// waitDelay bounds how long a killed process may hold its pipes open.
const waitDelay = 2 * time.Second

// Runner executes commands with a default timeout.
type Runner struct {
	timeout time.Duration
}

// NewRunner creates a runner. A non-positive timeout defaults to 30s.
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{timeout: timeout}
}

// Timeout returns the default timeout.
func (r *Runner) Timeout() time.Duration { return r.timeout }

// Run executes argv and returns its stdout. Input, when set, is written to
// stdin. The process is killed when ctx ends or the timeout elapses.
func (r *Runner) Run(ctx context.Context, input string, argv []string) ([]byte, error) {
	return r.RunIn(ctx, "", input, argv)
}

// RunIn is Run with the working directory set to dir.
func (r *Runner) RunIn(ctx context.Context, dir, input string, argv []string) ([]byte, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("empty command")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	err := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out: %w", argv[0], ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctxErr)
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s failed: %w\nstderr: %s", argv[0], err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", argv[0], err)
	}
	return stdout.Bytes(), nil
}

// Expand replaces {name} placeholders in every argument of template in a
// single pass, so substituted values are never expanded again.
func Expand(template []string, vars map[string]string) []string {
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	r := strings.NewReplacer(pairs...)

	out := make([]string, len(template))
	for i, arg := range template {
		out[i] = r.Replace(arg)
	}
	return out
}

// CheckBinary reports whether name can be found in PATH.
func CheckBinary(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("binary '%s' not found in PATH: %w", name, err)
	}
	return nil
}
