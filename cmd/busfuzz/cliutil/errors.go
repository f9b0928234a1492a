package cliutil

import (
	"github.com/urfave/cli/v2"

	"github.com/busfuzz/busfuzz/fuzz"
)

// InternalErrorExitCode is the exit status of a run that could not test anything.
const InternalErrorExitCode = fuzz.CodeInternalError & 0xff

// WithErrorHandler makes sure an error returned by actionFunc ends the process with a verdict code. Errors
// that already carry an exit code keep it, anything else is an internal error.
func WithErrorHandler(actionFunc cli.ActionFunc) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		err := actionFunc(ctx)
		if err != nil {
			if _, ok := err.(cli.ExitCoder); ok {
				return err
			}
			err = cli.Exit(err.Error(), InternalErrorExitCode)
		}
		return err
	}
}
