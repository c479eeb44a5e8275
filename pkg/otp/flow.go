package otp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrBusy is returned when another call of the same kind is in flight.
	ErrBusy = errors.New("otp: request already in flight")
	// ErrNoChallenge is returned when no challenge has been issued yet.
	ErrNoChallenge = errors.New("otp: no challenge issued")
	// ErrUnknownChallenge is returned for ids this flow never issued.
	ErrUnknownChallenge = errors.New("otp: unknown challenge id")
	// ErrSuperseded is returned when resending from a challenge that has
	// already been replaced.
	ErrSuperseded = errors.New("otp: challenge superseded")
	// ErrNotPending is returned when resending from a verified or locked
	// challenge. Locked challenges need a fresh Issue instead.
	ErrNotPending = errors.New("otp: challenge is not pending")
	// ErrResendLimit is returned once the resend ceiling is reached.
	ErrResendLimit = errors.New("otp: resend limit reached")
	// ErrResendCooldown is returned when resending before the cooldown elapses.
	ErrResendCooldown = errors.New("otp: resend cooldown active")
	// ErrContactMissing is returned when issuing without a contact.
	ErrContactMissing = errors.New("otp: contact is required")
	// ErrMalformedResponse is returned when the backend answers without a
	// usable challenge id.
	ErrMalformedResponse = errors.New("otp: malformed backend response")
)

// Issued is the backend reply to issue and resend requests.
type Issued struct {
	ChallengeID string
	ExpiresIn   time.Duration
}

// Verification reasons reported by the backend when Verified is false.
const (
	ReasonInvalid = "invalid"
	ReasonExpired = "expired"
	ReasonLocked  = "locked"
)

// Verification is the backend reply to a verify request.
type Verification struct {
	Verified bool
	Reason   string
}

// Backend is the collaborator that dispatches and checks passcodes. Issue and
// Resend are the only calls that cause an outbound message.
type Backend interface {
	Issue(ctx context.Context, contact string) (Issued, error)
	Verify(ctx context.Context, challengeID, code string) (Verification, error)
	Resend(ctx context.Context, challengeID string) (Issued, error)
}

// Policy bounds a challenge. Window is only used when the backend does not
// declare an expiry.
type Policy struct {
	Window         time.Duration
	MaxAttempts    int
	MaxResends     int
	ResendCooldown time.Duration
}

// DefaultPolicy returns a five minute window, five attempts and three resends.
func DefaultPolicy() Policy {
	return Policy{
		Window:      5 * time.Minute,
		MaxAttempts: 5,
		MaxResends:  3,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Window <= 0 {
		p.Window = def.Window
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.MaxResends < 0 {
		p.MaxResends = 0
	}
	if p.ResendCooldown < 0 {
		p.ResendCooldown = 0
	}
	return p
}

// Option configures a Flow.
type Option func(*Flow)

// WithPolicy overrides the default challenge policy.
func WithPolicy(policy Policy) Option {
	return func(f *Flow) {
		f.policy = policy.withDefaults()
	}
}

// WithClock overrides the clock used for expiry and cooldown checks.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Flow is the challenge state machine for one wizard session. It tracks the
// current challenge plus every id it superseded so late responses can be
// recognised and discarded.
type Flow struct {
	backend Backend
	policy  Policy
	now     func() time.Time
	logger  *zap.Logger

	mu        sync.Mutex
	current   *Challenge
	retired   map[string]Challenge
	issuing   bool
	verifying bool
}

// NewFlow constructs a Flow bound to backend.
func NewFlow(backend Backend, options ...Option) *Flow {
	f := &Flow{
		backend: backend,
		policy:  DefaultPolicy(),
		now:     time.Now,
		logger:  zap.NewNop(),
		retired: make(map[string]Challenge),
	}
	for _, opt := range options {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Policy returns the effective policy.
func (f *Flow) Policy() Policy {
	return f.policy
}

// Current returns the active challenge with clock-driven expiry applied.
func (f *Flow) Current() (Challenge, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return Challenge{}, false
	}
	c := *f.current
	c.Status = c.statusAt(f.now())
	return c, true
}

// Issue requests a fresh challenge for contact. Any previous challenge is
// superseded; this is also how a locked or expired challenge is restarted.
func (f *Flow) Issue(ctx context.Context, contact string) (Challenge, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return Challenge{}, ErrContactMissing
	}

	f.mu.Lock()
	if f.issuing {
		f.mu.Unlock()
		return Challenge{}, ErrBusy
	}
	f.issuing = true
	f.mu.Unlock()

	issued, err := f.backend.Issue(ctx, contact)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.issuing = false
	if err != nil {
		return Challenge{}, fmt.Errorf("otp: issue: %w", err)
	}
	if strings.TrimSpace(issued.ChallengeID) == "" {
		return Challenge{}, ErrMalformedResponse
	}

	f.retireCurrent()
	c := f.newChallenge(issued, contact, 0)
	f.current = &c
	f.logger.Info("otp challenge issued",
		zap.String("challenge_id", c.ID),
		zap.Duration("window", c.Window),
	)
	return c, nil
}

// Verify checks code against the challenge identified by id. Expected user
// conditions are reported through Result.Outcome; errors are reserved for
// transport failures and ids this flow never issued.
func (f *Flow) Verify(ctx context.Context, id, code string) (Result, error) {
	f.mu.Lock()
	if f.current == nil {
		if old, ok := f.retired[id]; ok {
			f.mu.Unlock()
			return Result{Outcome: OutcomeExpired, Challenge: old, Stale: true}, nil
		}
		f.mu.Unlock()
		return Result{}, ErrNoChallenge
	}
	if id != f.current.ID {
		old, ok := f.retired[id]
		f.mu.Unlock()
		if !ok {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownChallenge, id)
		}
		return Result{Outcome: OutcomeExpired, Challenge: old, Stale: true}, nil
	}

	now := f.now()
	if settled, ok := f.settledLocked(now); ok {
		f.mu.Unlock()
		return settled, nil
	}
	if f.verifying {
		f.mu.Unlock()
		return Result{}, ErrBusy
	}
	f.verifying = true
	f.mu.Unlock()

	resp, err := f.backend.Verify(ctx, id, strings.TrimSpace(code))

	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifying = false

	if f.current == nil || f.current.ID != id {
		old := f.retired[id]
		f.logger.Debug("discarding stale verify response", zap.String("challenge_id", id))
		return Result{Outcome: OutcomeExpired, Challenge: old, Stale: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("otp: verify: %w", err)
	}

	c := f.current
	switch {
	case resp.Verified:
		c.Status = StatusVerified
	case resp.Reason == ReasonExpired:
		c.Status = StatusExpired
	case resp.Reason == ReasonLocked:
		c.AttemptsUsed = c.MaxAttempts
		c.Status = StatusLocked
	default:
		c.AttemptsUsed++
		if c.AttemptsUsed >= c.MaxAttempts {
			c.Status = StatusLocked
		}
	}

	result := Result{Challenge: *c}
	switch c.Status {
	case StatusVerified:
		result.Outcome = OutcomeVerified
	case StatusExpired:
		result.Outcome = OutcomeExpired
	case StatusLocked:
		result.Outcome = OutcomeLocked
	default:
		result.Outcome = OutcomeInvalidCode
	}
	f.logger.Info("otp verification",
		zap.String("challenge_id", c.ID),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("attempts_used", c.AttemptsUsed),
	)
	return result, nil
}

// settledLocked answers without a backend call when the current challenge
// has already reached a terminal state or its window has elapsed. Expiry is
// checked before the attempt counter.
func (f *Flow) settledLocked(now time.Time) (Result, bool) {
	c := f.current
	if c.Status == StatusPending && c.Expired(now) {
		c.Status = StatusExpired
	}
	if c.Status == StatusPending && c.AttemptsUsed >= c.MaxAttempts {
		c.Status = StatusLocked
	}
	switch c.Status {
	case StatusVerified:
		return Result{Outcome: OutcomeVerified, Challenge: *c}, true
	case StatusExpired:
		return Result{Outcome: OutcomeExpired, Challenge: *c}, true
	case StatusLocked:
		return Result{Outcome: OutcomeLocked, Challenge: *c}, true
	}
	return Result{}, false
}

// Resend replaces the challenge identified by id with a new one. The old id
// stops verifying immediately, even if its window has time left. Resending
// from an expired challenge is allowed; from a locked or verified one it is
// not.
func (f *Flow) Resend(ctx context.Context, id string) (Challenge, error) {
	f.mu.Lock()
	if f.current == nil {
		f.mu.Unlock()
		return Challenge{}, ErrNoChallenge
	}
	if id != f.current.ID {
		_, retired := f.retired[id]
		f.mu.Unlock()
		if retired {
			return Challenge{}, ErrSuperseded
		}
		return Challenge{}, fmt.Errorf("%w: %s", ErrUnknownChallenge, id)
	}

	now := f.now()
	c := *f.current
	switch c.statusAt(now) {
	case StatusVerified, StatusLocked:
		f.mu.Unlock()
		return Challenge{}, ErrNotPending
	}
	if c.ResendsUsed >= c.MaxResends {
		f.mu.Unlock()
		return Challenge{}, ErrResendLimit
	}
	if f.policy.ResendCooldown > 0 && now.Sub(c.IssuedAt) < f.policy.ResendCooldown {
		f.mu.Unlock()
		return Challenge{}, ErrResendCooldown
	}
	if f.issuing {
		f.mu.Unlock()
		return Challenge{}, ErrBusy
	}
	f.issuing = true
	f.mu.Unlock()

	issued, err := f.backend.Resend(ctx, id)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.issuing = false
	if err != nil {
		return Challenge{}, fmt.Errorf("otp: resend: %w", err)
	}
	if strings.TrimSpace(issued.ChallengeID) == "" || issued.ChallengeID == id {
		return Challenge{}, ErrMalformedResponse
	}
	if f.current == nil || f.current.ID != id {
		return Challenge{}, ErrSuperseded
	}

	f.retireCurrent()
	next := f.newChallenge(issued, c.Contact, c.ResendsUsed+1)
	f.current = &next
	f.logger.Info("otp challenge resent",
		zap.String("previous_id", id),
		zap.String("challenge_id", next.ID),
		zap.Int("resends_used", next.ResendsUsed),
	)
	return next, nil
}

// Retired returns a superseded challenge by id.
func (f *Flow) Retired(id string) (Challenge, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.retired[id]
	return c, ok
}

// Restore reinstates a previously persisted challenge, used when a saved
// session is resumed.
func (f *Flow) Restore(c Challenge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retireCurrent()
	c.Superseded = false
	f.current = &c
}

func (f *Flow) retireCurrent() {
	if f.current == nil {
		return
	}
	old := *f.current
	old.Superseded = true
	if old.Status == StatusPending {
		old.Status = StatusExpired
	}
	f.retired[old.ID] = old
	f.current = nil
}

func (f *Flow) newChallenge(issued Issued, contact string, resends int) Challenge {
	window := issued.ExpiresIn
	if window <= 0 {
		window = f.policy.Window
	}
	return Challenge{
		ID:          issued.ChallengeID,
		Contact:     contact,
		IssuedAt:    f.now(),
		Window:      window,
		MaxAttempts: f.policy.MaxAttempts,
		ResendsUsed: resends,
		MaxResends:  f.policy.MaxResends,
		Status:      StatusPending,
	}
}
