package answer

import (
	"errors"
	"fmt"
)

var (
	// ErrGenerationFailed marks a run that exhausted its generation retries.
	// The caller surfaces it as a temporarily-unavailable outcome.
	ErrGenerationFailed = errors.New("answer generation failed")

	// ErrRunCancelled is returned when the caller's context is cancelled
	// between state transitions.
	ErrRunCancelled = errors.New("run cancelled")
)

// ConnectorError records a single source failing during fan-out. It degrades
// the run instead of aborting it and is kept for observability.
type ConnectorError struct {
	Source string
	Err    error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector %s: %v", e.Source, e.Err)
}

func (e *ConnectorError) Unwrap() error {
	return e.Err
}
