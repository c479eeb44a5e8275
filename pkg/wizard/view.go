package wizard

import (
	"time"

	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/otp"
	"github.com/goliatone/go-formwizard/pkg/validation"
)

// View is the read-only snapshot a host UI renders from. Hosts wire their
// onFieldChange, onNext, onBack, onVerifyCode and onResend callbacks to the
// matching Controller methods and re-render from a fresh View afterwards.
type View struct {
	SessionID    string            `json:"sessionId"`
	DefinitionID string            `json:"definitionId"`
	Title        string            `json:"title,omitempty"`
	StepIndex    int               `json:"stepIndex"`
	StepCount    int               `json:"stepCount"`
	Reached      int               `json:"reached"`
	Step         model.Step        `json:"step"`
	Fields       []model.Field     `json:"fields"`
	Answers      map[string]string `json:"answers"`
	Errors       validation.Errors `json:"errors,omitempty"`
	Valid        bool              `json:"valid"`
	Busy         bool              `json:"busy"`
	Status       Status            `json:"status"`
	Completed    bool              `json:"completed"`
	CanBack      bool              `json:"canBack"`
	CanNext      bool              `json:"canNext"`
	ReferenceID  string            `json:"referenceId,omitempty"`
	Challenge    *otp.Challenge    `json:"challenge,omitempty"`
	Remaining    time.Duration     `json:"remaining,omitempty"`
	Message      string            `json:"message,omitempty"`
}

// View returns the current host-facing snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	step := c.def.Steps[s.StepIndex].Clone()
	valid := c.engine.ValidateStep(step, s.Answers).Empty()
	editable := !c.busy && (s.Status == StatusDraft ||
		(s.Status == StatusFailed && s.FailureStage == StatusSubmitting))

	v := View{
		SessionID:    s.ID,
		DefinitionID: s.DefinitionID,
		Title:        c.def.Title,
		StepIndex:    s.StepIndex,
		StepCount:    c.def.StepCount(),
		Reached:      s.Reached,
		Step:         step,
		Fields:       c.engine.VisibleFields(step, s.Answers),
		Answers:      cloneAnswers(s.Answers),
		Errors:       c.shown,
		Valid:        valid,
		Busy:         c.busy,
		Status:       s.Status,
		Completed:    s.Completed,
		CanBack:      editable && (s.StepIndex > 0 || s.Status == StatusFailed),
		CanNext:      editable && s.Status == StatusDraft && valid,
		ReferenceID:  s.ReferenceID,
		Message:      s.LastMessage,
	}
	if s.Challenge != nil {
		ch := *s.Challenge
		if ch.Status == otp.StatusPending && ch.Expired(c.now()) {
			ch.Status = otp.StatusExpired
		}
		v.Challenge = &ch
		v.Remaining = ch.Remaining(c.now())
	}
	return v
}
