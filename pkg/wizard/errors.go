package wizard

import "errors"

var (
	// ErrBusy is returned while a submission or passcode call is in flight.
	ErrBusy = errors.New("wizard: busy")
	// ErrUnknownField is returned by SetField for names the definition lacks.
	ErrUnknownField = errors.New("wizard: unknown field")
	// ErrStepOutOfRange is returned by JumpTo for indices outside the step list.
	ErrStepOutOfRange = errors.New("wizard: step index out of range")
	// ErrSessionClosed is returned for any transition after verification.
	ErrSessionClosed = errors.New("wizard: session is verified and closed")
	// ErrSubmitted is returned when editing or navigating after the
	// application was accepted.
	ErrSubmitted = errors.New("wizard: application already submitted")
	// ErrNotAwaitingVerification is returned by passcode operations outside
	// the verification stage.
	ErrNotAwaitingVerification = errors.New("wizard: not awaiting verification")
	// ErrNothingToRetry is returned by Retry when the session has not failed.
	ErrNothingToRetry = errors.New("wizard: nothing to retry")
	// ErrFailed is returned by Next on a failed session; use Retry or Back.
	ErrFailed = errors.New("wizard: session failed, retry or go back")
	// ErrInvalidTransition guards the status lifecycle.
	ErrInvalidTransition = errors.New("wizard: invalid status transition")
	// ErrSessionMismatch is returned when restoring a session saved for a
	// different definition.
	ErrSessionMismatch = errors.New("wizard: session belongs to another definition")
)
