package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Run parses the arguments (excluding the program name), executes the
// invocation, and returns the process exit code. Errors are reported on
// stderr; the structured log carries the detail.
func Run(ctx context.Context, args []string, appVersion string) int {
	inv, err := ParseInvocation(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		Usage(os.Stderr)
		return ExitInvalidInvocation
	}
	inv.AppVersion = appVersion

	res, err := Execute(ctx, inv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return res.ExitCode
}

// IsInvocationError reports whether err is a command-line usage error.
func IsInvocationError(err error) bool {
	var ie *InvocationError
	return errors.As(err, &ie)
}
