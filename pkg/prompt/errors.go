package prompt

import "errors"

var (
	// ErrAborted signals the user aborted input (e.g., Ctrl+C).
	ErrAborted = errors.New("prompt: aborted")
	// ErrSuspended is returned when the user chose to save and leave. The
	// session snapshot returned alongside it can be resumed later.
	ErrSuspended = errors.New("prompt: session suspended")
)
