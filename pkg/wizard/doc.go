// Package wizard hosts the Controller that walks a user through a multi-step
// application.
//
// A Controller owns one Session: the answers, the current step index, the
// highest step reached and the submission lifecycle
//
//	draft -> submitting -> awaiting_verification -> verified
//	              \-> failed (retryable) and back to draft on a rejection
//
// Hosts call SetField, Next, Back, JumpTo, VerifyCode, Resend, Retry and
// RestartChallenge in response to user input and re-render from View. Step
// validity is never cached; every call recomputes it from the answers through
// the validation engine. Network work (submission and the passcode challenge)
// runs outside the controller lock with a busy flag set, so overlapping
// requests get ErrBusy instead of a second backend call.
//
// Snapshot returns a copy of the session that can be persisted and handed
// back through WithSession to resume a draft.
package wizard
