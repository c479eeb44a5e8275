package prompt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/otp"
	"github.com/goliatone/go-formwizard/pkg/validation"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

const (
	actionContinue     = "Continue"
	actionSubmit       = "Submit application"
	actionBack         = "Back"
	actionSuspend      = "Save and exit"
	actionEnterCode    = "Enter code"
	actionResend       = "Resend code"
	actionRestart      = "Start a new verification"
	actionRetry        = "Retry"
	actionEditAnswers  = "Edit answers"
	defaultFailureText = "Something went wrong, please retry."
)

// Runner drives a wizard.Controller from a terminal: it renders each step
// from the controller's View, forwards answers through SetField and maps
// menu choices onto Next, Back, VerifyCode, Resend and Retry.
type Runner struct {
	ctrl   *wizard.Controller
	driver PromptDriver
	theme  Theme
	saver  Saver
	logger *zap.Logger

	lastMessage string
}

// NewRunner constructs a Runner for ctrl.
func NewRunner(ctrl *wizard.Controller, options ...Option) (*Runner, error) {
	if ctrl == nil {
		return nil, errors.New("prompt: controller is required")
	}
	r := &Runner{
		ctrl:   ctrl,
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(r)
		}
	}
	if r.driver == nil {
		r.driver = NewSurveyDriver(Stdio{})
	}
	return r, nil
}

// Run loops until the session is verified, the user suspends it, or the
// context ends. The final snapshot is always returned.
func (r *Runner) Run(ctx context.Context) (wizard.Session, error) {
	for {
		if err := ctx.Err(); err != nil {
			return r.ctrl.Snapshot(), err
		}
		view := r.ctrl.View()

		var err error
		switch view.Status {
		case wizard.StatusVerified:
			r.checkpoint(ctx)
			if err := r.info(ctx, fmt.Sprintf("Application %s is verified. Thank you!", view.ReferenceID)); err != nil {
				return r.ctrl.Snapshot(), err
			}
			return r.ctrl.Snapshot(), nil
		case wizard.StatusDraft:
			err = r.runStep(ctx, view)
		case wizard.StatusAwaitingVerification:
			err = r.runChallenge(ctx, view)
		case wizard.StatusFailed:
			err = r.runFailure(ctx, view)
		default:
			err = fmt.Errorf("prompt: unexpected session status %q", view.Status)
		}
		r.checkpoint(ctx)
		if err != nil {
			return r.ctrl.Snapshot(), err
		}
	}
}

func (r *Runner) runStep(ctx context.Context, view wizard.View) error {
	title := view.Step.Title
	if title == "" {
		title = view.Step.ID
	}
	if err := r.info(ctx, fmt.Sprintf("Step %d of %d: %s", view.StepIndex+1, view.StepCount, title)); err != nil {
		return err
	}
	if err := r.notice(ctx, view.Message); err != nil {
		return err
	}

	if err := r.collect(ctx, view.StepIndex, nil); err != nil {
		return err
	}
	for {
		current := r.ctrl.View()
		if current.StepIndex != view.StepIndex || current.Valid {
			break
		}
		if err := r.showErrors(ctx, current.Errors); err != nil {
			return err
		}
		if err := r.collect(ctx, view.StepIndex, current.Errors.Fields()); err != nil {
			return err
		}
	}

	current := r.ctrl.View()
	forward := actionContinue
	if current.StepIndex == current.StepCount-1 {
		forward = actionSubmit
	}
	options := []string{forward}
	if current.CanBack {
		options = append(options, actionBack)
	}
	options = append(options, actionSuspend)

	choice, err := r.choose(ctx, "What next?", options)
	if err != nil {
		return err
	}
	switch choice {
	case actionBack:
		_, err := r.ctrl.Back()
		return err
	case actionSuspend:
		return ErrSuspended
	}

	out, err := r.ctrl.Next(ctx)
	if err != nil {
		return r.recoverable(ctx, err)
	}
	if !out.Errors.Empty() {
		return r.showErrors(ctx, out.Errors)
	}
	if out.Submission != nil && out.Submission.ReferenceID != "" {
		return r.info(ctx, fmt.Sprintf("Application received, reference %s.", out.Submission.ReferenceID))
	}
	return nil
}

// collect prompts for every visible field of the step. When only is set,
// fields outside it are asked only if they have no answer yet, which covers
// fields revealed by an edited answer.
func (r *Runner) collect(ctx context.Context, stepIndex int, only []string) error {
	focus := make(map[string]bool, len(only))
	for _, name := range only {
		focus[name] = true
	}
	asked := make(map[string]bool)

	for {
		view := r.ctrl.View()
		if view.StepIndex != stepIndex {
			return nil
		}
		var (
			field model.Field
			found bool
		)
		for _, candidate := range view.Fields {
			if asked[candidate.Name] {
				continue
			}
			if only != nil && !focus[candidate.Name] && view.Answers[candidate.Name] != "" {
				continue
			}
			field, found = candidate, true
			break
		}
		if !found {
			return nil
		}
		asked[field.Name] = true

		value, err := r.ask(ctx, field, view.Answers[field.Name])
		if err != nil {
			return err
		}
		if _, err := r.ctrl.SetField(field.Name, value); err != nil {
			return err
		}
	}
}

func (r *Runner) ask(ctx context.Context, field model.Field, current string) (string, error) {
	message := field.Label
	if message == "" {
		message = field.Name
	}
	if !field.Required && field.RequiredIf == "" && field.Kind != model.FieldKindCheckbox {
		message += " (optional)"
	}

	switch field.Kind {
	case model.FieldKindEnum:
		idx, err := r.driver.Select(ctx, SelectConfig{
			Message:      message,
			Options:      field.Options,
			DefaultIndex: indexOf(field.Options, current),
			Help:         field.Help,
		})
		if err != nil {
			return "", err
		}
		if idx < 0 || idx >= len(field.Options) {
			return "", nil
		}
		return field.Options[idx], nil
	case model.FieldKindCheckbox:
		checked, _ := strconv.ParseBool(current)
		ok, err := r.driver.Confirm(ctx, ConfirmConfig{Message: message, Default: checked, Help: field.Help})
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(ok), nil
	case model.FieldKindDate:
		help := field.Help
		if help == "" {
			help = "Use YYYY-MM-DD"
		}
		return r.driver.Input(ctx, InputConfig{Message: message, Default: current, Help: help})
	default:
		return r.driver.Input(ctx, InputConfig{Message: message, Default: current, Help: field.Help})
	}
}

func (r *Runner) runChallenge(ctx context.Context, view wizard.View) error {
	ch := view.Challenge
	if ch == nil {
		return errors.New("prompt: awaiting verification without a challenge")
	}

	switch ch.Status {
	case otp.StatusPending:
		prompt := fmt.Sprintf("Enter the code sent to %s (%s left, %d attempts remaining)",
			maskContact(ch.Contact), view.Remaining.Round(time.Second), ch.AttemptsLeft())
		code, err := r.driver.Input(ctx, InputConfig{Message: prompt, Help: "Leave empty for more options", Secret: true})
		if err != nil {
			return err
		}
		if strings.TrimSpace(code) == "" {
			return r.challengeMenu(ctx, *ch)
		}
		out, err := r.ctrl.VerifyCode(ctx, strings.TrimSpace(code))
		if err != nil {
			return r.recoverable(ctx, err)
		}
		if out.Transient {
			return r.warn(ctx, out.Message)
		}
		if out.Verification != nil && out.Verification.Outcome != otp.OutcomeVerified {
			r.lastMessage = out.Verification.Outcome.Message()
			return r.warn(ctx, r.lastMessage)
		}
		return nil
	case otp.StatusExpired:
		if err := r.notice(ctx, otp.OutcomeExpired.Message()); err != nil {
			return err
		}
	case otp.StatusLocked:
		if err := r.notice(ctx, otp.OutcomeLocked.Message()); err != nil {
			return err
		}
	}
	return r.challengeMenu(ctx, *ch)
}

func (r *Runner) challengeMenu(ctx context.Context, ch otp.Challenge) error {
	var options []string
	if ch.Status == otp.StatusPending {
		options = append(options, actionEnterCode)
	}
	if ch.Status != otp.StatusLocked && ch.ResendsLeft() > 0 {
		options = append(options, actionResend)
	}
	if ch.Status != otp.StatusPending {
		options = append(options, actionRestart)
	}
	options = append(options, actionSuspend)

	choice, err := r.choose(ctx, "Verification", options)
	if err != nil {
		return err
	}
	switch choice {
	case actionResend:
		out, err := r.ctrl.Resend(ctx)
		if errors.Is(err, otp.ErrResendCooldown) || errors.Is(err, otp.ErrResendLimit) {
			return r.warn(ctx, "A new code cannot be sent right now. Please wait and try again.")
		}
		if err != nil {
			return r.recoverable(ctx, err)
		}
		if out.Transient {
			return r.warn(ctx, out.Message)
		}
		return r.info(ctx, "A new code is on its way.")
	case actionRestart:
		out, err := r.ctrl.RestartChallenge(ctx)
		if err != nil {
			return r.recoverable(ctx, err)
		}
		if out.Transient {
			return r.warn(ctx, out.Message)
		}
		return nil
	case actionSuspend:
		return ErrSuspended
	}
	return nil
}

func (r *Runner) runFailure(ctx context.Context, view wizard.View) error {
	message := view.Message
	if message == "" {
		message = defaultFailureText
	}
	if err := r.warn(ctx, message); err != nil {
		return err
	}

	options := []string{actionRetry}
	if r.ctrl.Snapshot().FailureStage == wizard.StatusSubmitting {
		options = append(options, actionEditAnswers)
	}
	options = append(options, actionSuspend)

	choice, err := r.choose(ctx, "How do you want to continue?", options)
	if err != nil {
		return err
	}
	switch choice {
	case actionEditAnswers:
		_, err := r.ctrl.Back()
		return err
	case actionSuspend:
		return ErrSuspended
	}
	if _, err := r.ctrl.Retry(ctx); err != nil {
		return r.recoverable(ctx, err)
	}
	return nil
}

// recoverable swallows controller errors that left the session in a state
// the loop can recover from.
func (r *Runner) recoverable(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if r.ctrl.Snapshot().Status == wizard.StatusFailed {
		r.logger.Warn("interaction failed", zap.Error(err))
		return nil
	}
	return err
}

func (r *Runner) choose(ctx context.Context, message string, options []string) (string, error) {
	idx, err := r.driver.Select(ctx, SelectConfig{Message: message, Options: options})
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(options) {
		return "", fmt.Errorf("prompt: invalid choice %d", idx)
	}
	return options[idx], nil
}

func (r *Runner) showErrors(ctx context.Context, errs validation.Errors) error {
	for _, e := range errs {
		if err := r.warn(ctx, e.Message); err != nil {
			return err
		}
	}
	return nil
}

// notice prints message once, skipping repeats of the last one shown.
func (r *Runner) notice(ctx context.Context, message string) error {
	if message == "" || message == r.lastMessage {
		return nil
	}
	r.lastMessage = message
	return r.warn(ctx, message)
}

func (r *Runner) info(ctx context.Context, message string) error {
	return r.driver.Info(ctx, r.theme.InfoPrefix+message)
}

func (r *Runner) warn(ctx context.Context, message string) error {
	if message == "" {
		return nil
	}
	return r.driver.Info(ctx, r.theme.ErrorPrefix+message)
}

func (r *Runner) checkpoint(ctx context.Context) {
	if r.saver == nil {
		return
	}
	snapshot := r.ctrl.Snapshot()
	if err := r.saver.Save(ctx, snapshot); err != nil {
		r.logger.Warn("failed to save session", zap.String("session_id", snapshot.ID), zap.Error(err))
	}
}

func maskContact(contact string) string {
	if len(contact) <= 4 {
		return contact
	}
	return strings.Repeat("*", len(contact)-4) + contact[len(contact)-4:]
}
