package engine

import (
	"context"
	"errors"
)

// ErrDisconnected is the one error code the engine itself mints: an
// operation was requested against a TCP session whose socket was already
// closed. All other error values observed by TCP and UDP callbacks pass
// through unchanged from the standard net package.
var ErrDisconnected = errors.New("engine: session already disconnected")

// ErrCancelled is context.Canceled. It is delivered to a Workload's
// completion callback when a ScheduledItem is cancelled before its schedule
// fires; the workload itself is then not run.
var ErrCancelled = context.Canceled

// ErrPoolClosed is returned by Pool's Run methods once Shutdown has been
// called, and by Executor.Submit once the Executor is closed.
var ErrPoolClosed = errors.New("engine: worker pool is shut down")
