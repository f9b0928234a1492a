// Package healthcheck runs the user supplied command that verifies the
// target after every fuzzed call.
package healthcheck

import (
	"context"
	"os"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"
)

const defaultShell = "/bin/sh"

// Result of one run. Status is the exit status of the command; a command
// killed by a signal reports 128+signal like a shell does.
type Result struct {
	Status int
}

func (r Result) Passed() bool {
	return r.Status == 0
}

// Runner executes Command through a shell. The zero value, or a Runner with
// an empty Command, always passes.
type Runner struct {
	Command string
	// Shell used to interpret Command, /bin/sh if empty.
	Shell string
}

func New(command string) *Runner {
	return &Runner{Command: command}
}

// Configured reports whether a command will actually be executed.
func (r *Runner) Configured() bool {
	return r != nil && r.Command != ""
}

// Run executes the command with its stdout and stderr discarded and waits
// for it to finish. An error is returned when the command could not be
// started or waited for, or when ctx ended while it ran.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if !r.Configured() {
		return Result{}, nil
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return Result{}, errors.Wrap(err, "cannot open null device for health check output")
	}
	defer devNull.Close()

	shell := r.Shell
	if shell == "" {
		shell = defaultShell
	}
	// #nosec G204
	cmd := exec.CommandContext(ctx, shell, "-c", r.Command)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		return Result{}, errors.Wrapf(err, "cannot start health check %q", r.Command)
	}
	err = cmd.Wait()
	if err == nil {
		return Result{}, nil
	}
	// A command killed because ctx ended said nothing about the target.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, errors.Wrapf(ctxErr, "health check %q interrupted", r.Command)
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return Result{}, errors.Wrapf(err, "waiting for health check %q", r.Command)
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Result{Status: 128 + int(ws.Signal())}, nil
	}
	return Result{Status: exitErr.ExitCode()}, nil
}
