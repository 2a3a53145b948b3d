package sync

import (
	"errors"
	"fmt"
)

// ErrSyncAlreadyRunning is returned when a cycle is requested while a
// previous one is still in flight.
var ErrSyncAlreadyRunning = errors.New("sync cycle already running")

// IntegrityError reports downloaded content whose hash does not match the
// hash advertised in the diff. The item is rejected and left for a later
// cycle; it is never written to the workspace.
type IntegrityError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %q: expected %s, got %s", e.Path, e.Expected, e.Actual)
}
