package wizard

import (
	"fmt"
	"time"

	"github.com/goliatone/go-formwizard/pkg/otp"
)

// Status is the submission lifecycle of a session.
type Status string

const (
	StatusDraft                Status = "draft"
	StatusSubmitting           Status = "submitting"
	StatusAwaitingVerification Status = "awaiting_verification"
	StatusVerified             Status = "verified"
	StatusFailed               Status = "failed"
)

// allowedTransitions encodes the lifecycle. Submitting returns to Draft on a
// rejection; Failed is left by going back to Draft or by re-entering the
// stage that failed.
var allowedTransitions = map[Status][]Status{
	StatusDraft:                {StatusSubmitting},
	StatusSubmitting:           {StatusAwaitingVerification, StatusFailed, StatusDraft},
	StatusAwaitingVerification: {StatusVerified, StatusFailed},
	StatusFailed:               {StatusDraft, StatusSubmitting, StatusAwaitingVerification},
	StatusVerified:             nil,
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Session is the mutable aggregate owned by one Controller. Step validity is
// never stored; it is recomputed from Answers.
type Session struct {
	ID           string            `json:"id"`
	DefinitionID string            `json:"definitionId"`
	StepIndex    int               `json:"stepIndex"`
	Reached      int               `json:"reached"`
	Answers      map[string]string `json:"answers"`
	Status       Status            `json:"status"`
	Completed    bool              `json:"completed"`
	FailureStage Status            `json:"failureStage,omitempty"`
	ReferenceID  string            `json:"referenceId,omitempty"`
	ChallengeID  string            `json:"challengeId,omitempty"`
	Challenge    *otp.Challenge    `json:"challenge,omitempty"`
	LastMessage  string            `json:"lastMessage,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	out := s
	out.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	if s.Challenge != nil {
		c := *s.Challenge
		out.Challenge = &c
	}
	return out
}

// Closed reports whether the session reached its terminal state.
func (s Session) Closed() bool {
	return s.Status == StatusVerified
}

func (s *Session) transition(to Status, now time.Time) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	if to == StatusFailed {
		s.FailureStage = s.Status
	} else {
		s.FailureStage = ""
	}
	s.Status = to
	s.UpdatedAt = now
	return nil
}
