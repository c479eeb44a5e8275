package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/otp"
	"github.com/goliatone/go-formwizard/pkg/submission"
	"github.com/goliatone/go-formwizard/pkg/validation"
)

const (
	msgSomethingWrong = "Something went wrong, please retry."
	msgUnreachable    = "We could not reach the server. Please retry."
)

// Submitter sends a completed session to the backend. *submission.Client
// satisfies it.
type Submitter interface {
	Submit(ctx context.Context, def model.Definition, sessionID string, answers map[string]string) (submission.Result, error)
}

// Challenger runs the passcode gate. *otp.Flow satisfies it.
type Challenger interface {
	Issue(ctx context.Context, contact string) (otp.Challenge, error)
	Verify(ctx context.Context, id, code string) (otp.Result, error)
	Resend(ctx context.Context, id string) (otp.Challenge, error)
}

type challengeRestorer interface {
	Restore(otp.Challenge)
}

// Outcome describes the effect of a transition. Expected user conditions
// (invalid step, rejected application, wrong code) are reported here and
// never as errors.
type Outcome struct {
	Moved        bool               `json:"moved"`
	StepIndex    int                `json:"stepIndex"`
	Completed    bool               `json:"completed"`
	Status       Status             `json:"status"`
	Errors       validation.Errors  `json:"errors,omitempty"`
	Submission   *submission.Result `json:"submission,omitempty"`
	Challenge    *otp.Challenge     `json:"challenge,omitempty"`
	Verification *otp.Result        `json:"verification,omitempty"`
	Transient    bool               `json:"transient,omitempty"`
	Message      string             `json:"message,omitempty"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithSession resumes a previously saved session instead of starting fresh.
func WithSession(session Session) Option {
	return func(c *Controller) {
		s := session.Clone()
		c.restore = &s
	}
}

// WithEngine overrides the validation engine.
func WithEngine(engine *validation.Engine) Option {
	return func(c *Controller) {
		if engine != nil {
			c.engine = engine
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the clock used for session timestamps and countdowns.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller is the step state machine for one session. All transitions are
// serialised; while a network call is in flight every transition returns
// ErrBusy.
type Controller struct {
	def        model.Definition
	engine     *validation.Engine
	submitter  Submitter
	challenger Challenger
	logger     *zap.Logger
	now        func() time.Time
	restore    *Session

	mu      sync.Mutex
	session Session
	shown   validation.Errors
	busy    bool
}

// New normalises def and opens a session on it. challenger may be nil when
// the definition declares no passcode contact field.
func New(def model.Definition, submitter Submitter, challenger Challenger, options ...Option) (*Controller, error) {
	normalized, err := def.Normalize()
	if err != nil {
		return nil, fmt.Errorf("wizard: %w", err)
	}
	if normalized.StepCount() == 0 {
		return nil, fmt.Errorf("wizard: definition %q has no steps", normalized.ID)
	}
	if submitter == nil {
		return nil, errors.New("wizard: submitter is required")
	}
	if normalized.OTP.ContactField != "" && challenger == nil {
		return nil, fmt.Errorf("wizard: definition %q requires a passcode challenger", normalized.ID)
	}

	c := &Controller{
		def:        normalized,
		engine:     validation.New(),
		submitter:  submitter,
		challenger: challenger,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range options {
		if opt != nil {
			opt(c)
		}
	}

	if c.restore != nil {
		if err := c.resume(*c.restore); err != nil {
			return nil, err
		}
		c.restore = nil
	} else {
		now := c.now()
		c.session = Session{
			ID:           uuid.NewString(),
			DefinitionID: normalized.ID,
			Answers:      make(map[string]string),
			Status:       StatusDraft,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}
	c.logger = c.logger.With(zap.String("session_id", c.session.ID), zap.String("definition", c.def.ID))
	return c, nil
}

func (c *Controller) resume(s Session) error {
	if s.DefinitionID != c.def.ID {
		return fmt.Errorf("%w: %q != %q", ErrSessionMismatch, s.DefinitionID, c.def.ID)
	}
	if s.StepIndex < 0 || s.StepIndex >= c.def.StepCount() {
		return fmt.Errorf("%w: %d", ErrStepOutOfRange, s.StepIndex)
	}
	if s.Reached < s.StepIndex {
		s.Reached = s.StepIndex
	}
	if s.Reached >= c.def.StepCount() {
		s.Reached = c.def.StepCount() - 1
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Answers == nil {
		s.Answers = make(map[string]string)
	}
	if s.Status == "" {
		s.Status = StatusDraft
	}
	// A session saved mid-submission lost its response; resubmitting is the
	// only safe way forward.
	if s.Status == StatusSubmitting {
		s.Status = StatusFailed
		s.FailureStage = StatusSubmitting
	}
	if s.Challenge != nil {
		if r, ok := c.challenger.(challengeRestorer); ok {
			r.Restore(*s.Challenge)
		}
	}
	c.session = s
	return nil
}

// Definition returns a copy of the normalised definition.
func (c *Controller) Definition() model.Definition {
	return c.def.Clone()
}

// Snapshot returns a copy of the session for persistence.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// SetField stores a trimmed answer and returns the owning step's error set.
// Answers are stored as typed; markup is reported by the engine rather than
// stripped. It never changes the step index.
func (c *Controller) SetField(name, value string) (validation.Errors, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(); err != nil {
		return nil, err
	}
	if err := c.reopenLocked(); err != nil {
		return nil, err
	}
	stepIdx, ok := c.def.FieldStep(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}

	c.session.Answers[name] = strings.TrimSpace(value)
	c.session.UpdatedAt = c.now()

	errs := c.engine.ValidateStep(c.def.Steps[stepIdx], c.session.Answers)
	if stepIdx == c.session.StepIndex {
		c.shown = errs
	}
	// An edit that breaks an earlier step closes forward jumps past it.
	if !errs.Empty() && stepIdx < c.session.Reached {
		c.session.Reached = stepIdx
	}
	return errs, nil
}

// Next advances when the current step is valid. On the last step it
// re-validates every step, submits, and starts the passcode challenge once
// the application is accepted.
func (c *Controller) Next(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if err := c.guardLocked(); err != nil {
		c.mu.Unlock()
		return Outcome{}, err
	}
	switch c.session.Status {
	case StatusAwaitingVerification:
		c.mu.Unlock()
		return Outcome{}, ErrSubmitted
	case StatusFailed:
		out := c.outcomeLocked(false)
		c.mu.Unlock()
		return out, ErrFailed
	}

	idx := c.session.StepIndex
	if errs := c.engine.ValidateStep(c.def.Steps[idx], c.session.Answers); !errs.Empty() {
		c.shown = errs
		out := c.outcomeLocked(false)
		c.mu.Unlock()
		return out, nil
	}

	if idx < c.def.StepCount()-1 {
		c.session.StepIndex = idx + 1
		if c.session.Reached < c.session.StepIndex {
			c.session.Reached = c.session.StepIndex
		}
		c.session.UpdatedAt = c.now()
		c.shown = nil
		out := c.outcomeLocked(true)
		c.mu.Unlock()
		return out, nil
	}

	if bad, errs := c.engine.FirstInvalidStep(c.def, c.session.Answers); bad >= 0 {
		c.session.StepIndex = bad
		c.session.Reached = bad
		c.shown = errs
		out := c.outcomeLocked(bad != idx)
		c.mu.Unlock()
		c.logger.Info("submission blocked by invalid step", zap.Int("step", bad))
		return out, nil
	}

	if err := c.session.transition(StatusSubmitting, c.now()); err != nil {
		c.mu.Unlock()
		return Outcome{}, err
	}
	c.session.Completed = true
	c.shown = nil
	c.busy = true
	sessionID, answers := c.session.ID, cloneAnswers(c.session.Answers)
	c.mu.Unlock()

	return c.submit(ctx, sessionID, answers)
}

// Back moves one step back without touching answers. On a failed submission
// it leaves the virtual completed state and reopens the session for editing.
func (c *Controller) Back() (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(); err != nil {
		return Outcome{}, err
	}
	if c.session.Status == StatusFailed || c.session.Status == StatusAwaitingVerification {
		if err := c.reopenLocked(); err != nil {
			return Outcome{}, err
		}
		return c.outcomeLocked(true), nil
	}
	if c.session.StepIndex == 0 {
		return c.outcomeLocked(false), nil
	}
	c.session.StepIndex--
	c.session.UpdatedAt = c.now()
	c.shown = nil
	return c.outcomeLocked(true), nil
}

// JumpTo moves to index. Backward jumps are always allowed; forward jumps
// only up to the highest step reached through valid transitions. Indices
// outside the step list are host errors.
func (c *Controller) JumpTo(index int) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(); err != nil {
		return Outcome{}, err
	}
	if index < 0 || index >= c.def.StepCount() {
		return Outcome{}, fmt.Errorf("%w: %d", ErrStepOutOfRange, index)
	}
	if err := c.reopenLocked(); err != nil {
		return Outcome{}, err
	}
	if index > c.session.StepIndex && index > c.session.Reached {
		return c.outcomeLocked(false), nil
	}
	moved := index != c.session.StepIndex
	c.session.StepIndex = index
	if moved {
		c.session.UpdatedAt = c.now()
		c.shown = nil
	}
	return c.outcomeLocked(moved), nil
}

// Retry re-enters the stage that failed, reusing the stored answers.
func (c *Controller) Retry(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if err := c.guardLocked(); err != nil {
		c.mu.Unlock()
		return Outcome{}, err
	}
	if c.session.Status != StatusFailed {
		c.mu.Unlock()
		return Outcome{}, ErrNothingToRetry
	}
	stage := c.session.FailureStage
	if err := c.session.transition(stage, c.now()); err != nil {
		c.mu.Unlock()
		return Outcome{}, err
	}
	c.busy = true
	c.logger.Info("retrying failed stage", zap.String("stage", string(stage)))

	if stage == StatusSubmitting {
		sessionID, answers := c.session.ID, cloneAnswers(c.session.Answers)
		c.mu.Unlock()
		return c.submit(ctx, sessionID, answers)
	}
	contact := c.contactLocked()
	c.mu.Unlock()
	return c.issue(ctx, contact)
}

// VerifyCode checks code against the current challenge. Responses for a
// challenge superseded while the call was in flight are discarded.
func (c *Controller) VerifyCode(ctx context.Context, code string) (Outcome, error) {
	c.mu.Lock()
	if err := c.guardLocked(); err != nil {
		c.mu.Unlock()
		return Outcome{}, err
	}
	if c.session.Status != StatusAwaitingVerification || c.session.ChallengeID == "" {
		c.mu.Unlock()
		return Outcome{}, ErrNotAwaitingVerification
	}
	id := c.session.ChallengeID
	c.busy = true
	c.mu.Unlock()

	res, err := c.challenger.Verify(ctx, id, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if err != nil {
		out := c.outcomeLocked(false)
		if isTransient(err) {
			out.Transient = true
			out.Message = msgUnreachable
			return out, nil
		}
		return out, fmt.Errorf("wizard: verify: %w", err)
	}
	if res.Stale || c.session.ChallengeID != id {
		c.logger.Debug("ignoring verification for superseded challenge", zap.String("challenge_id", id))
		out := c.outcomeLocked(false)
		out.Verification = &res
		return out, nil
	}

	c.setChallengeLocked(res.Challenge)
	c.session.LastMessage = res.Outcome.Message()
	if res.Outcome == otp.OutcomeVerified {
		if err := c.session.transition(StatusVerified, c.now()); err != nil {
			return Outcome{}, err
		}
		c.logger.Info("session verified", zap.String("reference_id", c.session.ReferenceID))
	}
	out := c.outcomeLocked(false)
	out.Verification = &res
	return out, nil
}

// Resend replaces the current challenge with a new one.
func (c *Controller) Resend(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if err := c.guardLocked(); err != nil {
		c.mu.Unlock()
		return Outcome{}, err
	}
	if c.session.Status != StatusAwaitingVerification || c.session.ChallengeID == "" {
		c.mu.Unlock()
		return Outcome{}, ErrNotAwaitingVerification
	}
	id := c.session.ChallengeID
	c.busy = true
	c.mu.Unlock()

	ch, err := c.challenger.Resend(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if err != nil {
		out := c.outcomeLocked(false)
		if isTransient(err) {
			out.Transient = true
			out.Message = msgUnreachable
			return out, nil
		}
		return out, fmt.Errorf("wizard: resend: %w", err)
	}
	c.setChallengeLocked(ch)
	c.session.LastMessage = ""
	return c.outcomeLocked(false), nil
}

// RestartChallenge issues a fresh challenge, the recovery path for a locked
// or expired code.
func (c *Controller) RestartChallenge(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if err := c.guardLocked(); err != nil {
		c.mu.Unlock()
		return Outcome{}, err
	}
	switch {
	case c.session.Status == StatusAwaitingVerification:
	case c.session.Status == StatusFailed && c.session.FailureStage == StatusAwaitingVerification:
		if err := c.session.transition(StatusAwaitingVerification, c.now()); err != nil {
			c.mu.Unlock()
			return Outcome{}, err
		}
	default:
		c.mu.Unlock()
		return Outcome{}, ErrNotAwaitingVerification
	}
	c.busy = true
	contact := c.contactLocked()
	c.mu.Unlock()
	return c.issue(ctx, contact)
}

// submit runs with busy set and the lock released.
func (c *Controller) submit(ctx context.Context, sessionID string, answers map[string]string) (Outcome, error) {
	result, err := c.submitter.Submit(ctx, c.def, sessionID, answers)

	c.mu.Lock()
	now := c.now()
	if err != nil {
		c.busy = false
		c.failLocked(now, msgSomethingWrong)
		out := c.outcomeLocked(false)
		c.mu.Unlock()
		c.logger.Error("submission failed", zap.Error(err))
		return out, fmt.Errorf("wizard: submit: %w", err)
	}

	switch result.Kind {
	case submission.KindAccepted:
		c.session.ReferenceID = result.ReferenceID
		c.session.LastMessage = ""
		if err := c.session.transition(StatusAwaitingVerification, now); err != nil {
			c.busy = false
			c.mu.Unlock()
			return Outcome{}, err
		}
		contact := c.contactLocked()
		c.mu.Unlock()
		c.logger.Info("application accepted", zap.String("reference_id", result.ReferenceID))
		out, err := c.issue(ctx, contact)
		out.Submission = &result
		return out, err

	case submission.KindRejected:
		c.busy = false
		_ = c.session.transition(StatusDraft, now)
		c.session.Completed = false
		c.session.LastMessage = result.Reason
		out := c.outcomeLocked(false)
		out.Submission = &result
		c.mu.Unlock()
		c.logger.Info("application rejected", zap.String("reason", result.Reason))
		return out, nil

	case submission.KindTransientFailure:
		c.busy = false
		c.failLocked(now, msgUnreachable)
		out := c.outcomeLocked(false)
		out.Submission = &result
		out.Transient = true
		c.mu.Unlock()
		c.logger.Warn("submission transient failure", zap.String("reason", result.Reason))
		return out, nil

	default:
		c.busy = false
		c.failLocked(now, msgSomethingWrong)
		out := c.outcomeLocked(false)
		c.mu.Unlock()
		return out, fmt.Errorf("%w: result kind %q", submission.ErrMalformedResponse, result.Kind)
	}
}

// issue runs with busy set, the lock released and the session awaiting
// verification. Definitions without a contact field verify immediately.
func (c *Controller) issue(ctx context.Context, contact string) (Outcome, error) {
	if c.challenger == nil || c.def.OTP.ContactField == "" {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.busy = false
		if err := c.session.transition(StatusVerified, c.now()); err != nil {
			return Outcome{}, err
		}
		return c.outcomeLocked(false), nil
	}

	ch, err := c.challenger.Issue(ctx, contact)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if err != nil {
		c.failLocked(c.now(), msgSomethingWrong)
		out := c.outcomeLocked(false)
		if isTransient(err) {
			c.session.LastMessage = msgUnreachable
			out.Message = msgUnreachable
			out.Transient = true
			return out, nil
		}
		c.logger.Error("challenge issue failed", zap.Error(err))
		return out, fmt.Errorf("wizard: issue challenge: %w", err)
	}
	c.setChallengeLocked(ch)
	c.session.LastMessage = ""
	return c.outcomeLocked(false), nil
}

func (c *Controller) guardLocked() error {
	if c.session.Closed() {
		return ErrSessionClosed
	}
	if c.busy {
		return ErrBusy
	}
	return nil
}

// reopenLocked returns a session whose submission failed to the editable
// draft state. Sessions past acceptance cannot be edited.
func (c *Controller) reopenLocked() error {
	switch c.session.Status {
	case StatusDraft:
		return nil
	case StatusFailed:
		if c.session.FailureStage != StatusSubmitting {
			return ErrSubmitted
		}
		if err := c.session.transition(StatusDraft, c.now()); err != nil {
			return err
		}
		c.session.Completed = false
		c.shown = nil
		return nil
	default:
		return ErrSubmitted
	}
}

func (c *Controller) failLocked(now time.Time, message string) {
	if err := c.session.transition(StatusFailed, now); err != nil {
		c.logger.Error("unexpected status transition", zap.Error(err))
		return
	}
	c.session.LastMessage = message
}

func (c *Controller) setChallengeLocked(ch otp.Challenge) {
	c.session.ChallengeID = ch.ID
	snapshot := ch
	c.session.Challenge = &snapshot
	c.session.UpdatedAt = c.now()
}

func (c *Controller) contactLocked() string {
	name := c.def.OTP.ContactField
	if name == "" {
		return ""
	}
	raw := c.session.Answers[name]
	if field, ok := c.def.Field(name); ok {
		return fmt.Sprint(validation.Normalize(field, raw))
	}
	return raw
}

func (c *Controller) outcomeLocked(moved bool) Outcome {
	out := Outcome{
		Moved:     moved,
		StepIndex: c.session.StepIndex,
		Completed: c.session.Completed,
		Status:    c.session.Status,
		Errors:    c.shown,
		Message:   c.session.LastMessage,
	}
	if c.session.Challenge != nil {
		ch := *c.session.Challenge
		out.Challenge = &ch
	}
	return out
}

func isTransient(err error) bool {
	return errors.Is(err, submission.ErrTransient)
}

func cloneAnswers(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
