package otp

import "time"

// Status is the lifecycle state of a single challenge id.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusExpired  Status = "expired"
	StatusLocked   Status = "locked"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusExpired || s == StatusLocked
}

// Outcome is the result of a verification attempt.
type Outcome string

const (
	OutcomeVerified    Outcome = "verified"
	OutcomeInvalidCode Outcome = "invalid_code"
	OutcomeExpired     Outcome = "expired"
	OutcomeLocked      Outcome = "locked"
)

// Challenge is an immutable snapshot of one issued passcode. Resending or
// restarting produces a new Challenge with a new ID.
type Challenge struct {
	ID           string        `json:"id"`
	Contact      string        `json:"contact"`
	IssuedAt     time.Time     `json:"issuedAt"`
	Window       time.Duration `json:"window"`
	AttemptsUsed int           `json:"attemptsUsed"`
	MaxAttempts  int           `json:"maxAttempts"`
	ResendsUsed  int           `json:"resendsUsed"`
	MaxResends   int           `json:"maxResends"`
	Status       Status        `json:"status"`
	Superseded   bool          `json:"superseded,omitempty"`
}

// ExpiresAt returns the instant the challenge stops accepting codes.
func (c Challenge) ExpiresAt() time.Time {
	return c.IssuedAt.Add(c.Window)
}

// Expired is a pure function of the clock: now - issuedAt >= window.
func (c Challenge) Expired(now time.Time) bool {
	return now.Sub(c.IssuedAt) >= c.Window
}

// Remaining returns the countdown shown to the user, never negative.
func (c Challenge) Remaining(now time.Time) time.Duration {
	left := c.ExpiresAt().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// AttemptsLeft reports how many verification attempts remain.
func (c Challenge) AttemptsLeft() int {
	left := c.MaxAttempts - c.AttemptsUsed
	if left < 0 {
		return 0
	}
	return left
}

// ResendsLeft reports how many resends remain.
func (c Challenge) ResendsLeft() int {
	left := c.MaxResends - c.ResendsUsed
	if left < 0 {
		return 0
	}
	return left
}

// statusAt folds clock-driven expiry into the stored status.
func (c Challenge) statusAt(now time.Time) Status {
	if c.Status == StatusPending && c.Expired(now) {
		return StatusExpired
	}
	return c.Status
}

// Result is what Verify reports back to the caller.
type Result struct {
	Outcome   Outcome   `json:"outcome"`
	Challenge Challenge `json:"challenge"`
	// Stale is set when the response targeted a challenge id that was
	// superseded while the call was in flight; the outcome is then Expired
	// and the current challenge is untouched.
	Stale bool `json:"stale,omitempty"`
}

// Message maps an outcome to the text shown to the user together with the
// recovery action it implies.
func (o Outcome) Message() string {
	switch o {
	case OutcomeVerified:
		return "Your contact has been verified."
	case OutcomeInvalidCode:
		return "The code you entered is incorrect. Please re-enter it."
	case OutcomeExpired:
		return "This code is no longer valid. Request a new code."
	case OutcomeLocked:
		return "Too many incorrect attempts. Start a new verification."
	default:
		return ""
	}
}
