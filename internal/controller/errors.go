package controller

import (
	"errors"
	"fmt"

	"splitcat/internal/supervisor"
)

// ErrJobAlreadyRunning is returned when starting while a job is live.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrNotAcknowledged is returned when starting before the previous job's
// terminal outcome was acknowledged.
var ErrNotAcknowledged = errors.New("previous job not acknowledged")

// ErrNoJob is returned by Wait when nothing has been started.
var ErrNoJob = errors.New("no job")

// ErrLaunchFailure matches any error from a launcher that could not start
// the child, including *supervisor.LaunchError.
var ErrLaunchFailure = supervisor.ErrLaunchFailure

// AbnormalExitError describes a child that exited non-zero without a
// cancellation request.
type AbnormalExitError struct {
	ExitCode    int
	Diagnostics string
}

func (e *AbnormalExitError) Error() string {
	if e.Diagnostics == "" {
		return fmt.Sprintf("process exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("process exited with status %d: %s", e.ExitCode, e.Diagnostics)
}
