package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/visibility"
	"github.com/goliatone/go-formwizard/pkg/visibility/expr"
)

// Engine evaluates field and step rules. It holds only configuration fixed at
// construction, so the same inputs always yield the same error set and the
// engine is safe to call on every keystroke from any goroutine.
type Engine struct {
	evaluator visibility.Evaluator
	now       func() time.Time
	extras    map[string]any
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluator overrides the predicate evaluator used for visibleIf and
// requiredIf rules.
func WithEvaluator(evaluator visibility.Evaluator) Option {
	return func(e *Engine) {
		if evaluator != nil {
			e.evaluator = evaluator
		}
	}
}

// WithClock fixes the reference time used by date-of-birth checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithExtras exposes host facts to predicates under the `extras.` prefix.
func WithExtras(extras map[string]any) Option {
	return func(e *Engine) {
		if len(extras) == 0 {
			return
		}
		e.extras = make(map[string]any, len(extras))
		for k, v := range extras {
			e.extras[k] = v
		}
	}
}

// New constructs an Engine with the expression evaluator and wall clock.
func New(options ...Option) *Engine {
	e := &Engine{
		evaluator: expr.New(),
		now:       time.Now,
	}
	for _, opt := range options {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *Engine) context(values map[string]string) visibility.Context {
	ctx := visibility.FromAnswers(values)
	ctx.Extras = e.extras
	return ctx
}

// Visible reports whether the field is shown for the given answers. Rules
// that fail to evaluate keep the field visible so nothing is silently
// dropped; Definition.Normalize rejects unparsable rules up front.
func (e *Engine) Visible(field model.Field, values map[string]string) bool {
	if strings.TrimSpace(field.VisibleIf) == "" {
		return true
	}
	ok, err := e.evaluator.Eval(field.Name, field.VisibleIf, e.context(values))
	if err != nil {
		return true
	}
	return ok
}

// Required reports whether the field must be filled for the given answers.
// A requiredIf rule, when present, decides on its own.
func (e *Engine) Required(field model.Field, values map[string]string) bool {
	if strings.TrimSpace(field.RequiredIf) == "" {
		return field.Required
	}
	ok, err := e.evaluator.Eval(field.Name, field.RequiredIf, e.context(values))
	if err != nil {
		return true
	}
	return ok
}

// VisibleFields returns the step fields shown for the given answers, in
// declaration order.
func (e *Engine) VisibleFields(step model.Step, values map[string]string) []model.Field {
	out := make([]model.Field, 0, len(step.Fields))
	for _, field := range step.Fields {
		if e.Visible(field, values) {
			out = append(out, field)
		}
	}
	return out
}

// ValidateField checks a single value. siblings carries every answer known so
// far and drives the visibleIf/requiredIf predicates. Hidden fields never
// produce errors.
func (e *Engine) ValidateField(field model.Field, value string, siblings map[string]string) Errors {
	if !e.Visible(field, siblings) {
		return nil
	}

	trimmed := strings.TrimSpace(value)
	required := e.Required(field, siblings)

	if field.Kind == model.FieldKindCheckbox {
		return e.validateCheckbox(field, trimmed, required)
	}

	if trimmed == "" {
		if required {
			return Errors{e.failure(field, RuleRequired, KindFormat, fmt.Sprintf("%s is required", label(field)))}
		}
		return nil
	}

	switch field.Kind {
	case model.FieldKindNumber:
		return e.validateNumber(field, trimmed)
	case model.FieldKindDate:
		return e.validateDate(field, trimmed)
	case model.FieldKindEnum:
		return e.validateEnum(field, trimmed)
	default:
		if field.Format == model.FormatDateOfBirth {
			return e.validateDate(field, trimmed)
		}
		return e.validateText(field, trimmed)
	}
}

// ValidateStep returns the union of the step's visible field errors and its
// cross-field rule failures, in field declaration order.
func (e *Engine) ValidateStep(step model.Step, values map[string]string) Errors {
	var out Errors
	for _, field := range step.Fields {
		out = append(out, e.ValidateField(field, values[field.Name], values)...)
	}
	out = append(out, e.validateCrossField(step, values)...)
	if len(out) == 0 {
		return nil
	}
	return out
}

// FirstInvalidStep validates every step in order and returns the index and
// errors of the first invalid one, or -1 when all steps pass.
func (e *Engine) FirstInvalidStep(def model.Definition, values map[string]string) (int, Errors) {
	for idx, step := range def.Steps {
		if errs := e.ValidateStep(step, values); !errs.Empty() {
			return idx, errs
		}
	}
	return -1, nil
}

func (e *Engine) validateCheckbox(field model.Field, value string, required bool) Errors {
	checked := false
	if value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return Errors{e.failure(field, RuleFormat, KindFormat, fmt.Sprintf("%s must be checked or unchecked", label(field)))}
		}
		checked = parsed
	}
	if required && !checked {
		return Errors{e.failure(field, RuleRequired, KindFormat, fmt.Sprintf("%s must be accepted", label(field)))}
	}
	return nil
}

func (e *Engine) validateText(field model.Field, value string) Errors {
	if containsMarkup(value) {
		return Errors{e.failure(field, RuleMarkup, KindFormat, fmt.Sprintf("%s must not contain HTML markup", label(field)))}
	}
	value = canonicalFormat(field.Format, value)
	length := utf8.RuneCountInString(value)

	if field.MinLength != nil && length < *field.MinLength {
		return Errors{e.failure(field, RuleMinLength, KindFormat, fmt.Sprintf("%s must be at least %d characters", label(field), *field.MinLength))}
	}
	if field.MaxLength != nil && length > *field.MaxLength {
		return Errors{e.failure(field, RuleMaxLength, KindFormat, fmt.Sprintf("%s must be at most %d characters", label(field), *field.MaxLength))}
	}
	if !matchesFormat(field.Format, value) {
		return Errors{e.failure(field, RuleFormat, KindFormat, fmt.Sprintf("%s must be %s", label(field), formatDescription(field.Format)))}
	}
	if field.Pattern != "" {
		re, err := compiledPattern(field.Pattern)
		if err != nil || !re.MatchString(value) {
			return Errors{e.failure(field, RuleFormat, KindFormat, fmt.Sprintf("%s is not in the expected format", label(field)))}
		}
	}
	return nil
}

func (e *Engine) validateNumber(field model.Field, value string) Errors {
	n, ok := parseWholeNumber(value)
	if !ok {
		return Errors{e.failure(field, RuleFormat, KindFormat, fmt.Sprintf("%s must be a whole number", label(field)))}
	}
	if n <= 0 {
		return Errors{e.failure(field, RulePositive, KindFormat, fmt.Sprintf("%s must be greater than zero", label(field)))}
	}

	v := float64(n)
	if field.Min != nil && v < *field.Min {
		return Errors{e.failure(field, RuleMin, KindFormat, fmt.Sprintf("%s must be at least %s", label(field), formatNumber(*field.Min)))}
	}
	if field.Max != nil && v > *field.Max {
		return Errors{e.failure(field, RuleMax, KindFormat, fmt.Sprintf("%s must be at most %s", label(field), formatNumber(*field.Max)))}
	}

	var out Errors
	for _, rule := range field.Business {
		if rule.Min != nil && v < *rule.Min {
			msg := rule.Message
			if msg == "" {
				msg = fmt.Sprintf("%s is below the minimum of %s", label(field), formatNumber(*rule.Min))
			}
			out = append(out, Error{Field: field.Name, Rule: rule.Name, Kind: KindBusiness, Message: msg})
			continue
		}
		if rule.Max != nil && v > *rule.Max {
			msg := rule.Message
			if msg == "" {
				msg = fmt.Sprintf("%s exceeds the maximum of %s", label(field), formatNumber(*rule.Max))
			}
			out = append(out, Error{Field: field.Name, Rule: rule.Name, Kind: KindBusiness, Message: msg})
		}
	}
	return out
}

func (e *Engine) validateDate(field model.Field, value string) Errors {
	parsed, ok := parseDate(value)
	if !ok {
		return Errors{e.failure(field, RuleFormat, KindFormat, fmt.Sprintf("%s must be a real date (YYYY-MM-DD)", label(field)))}
	}
	if field.Format != model.FormatDateOfBirth {
		return nil
	}

	today := dateOnly(e.now())
	if parsed.After(today) {
		return Errors{e.failure(field, RuleFuture, KindFormat, fmt.Sprintf("%s cannot be in the future", label(field)))}
	}
	// Bounds on a date of birth are ages in completed years.
	age := float64(ageOn(parsed, today))
	if field.Min != nil && age < *field.Min {
		return Errors{e.failure(field, RuleMin, KindFormat, fmt.Sprintf("You must be at least %s years old", formatNumber(*field.Min)))}
	}
	if field.Max != nil && age > *field.Max {
		return Errors{e.failure(field, RuleMax, KindFormat, fmt.Sprintf("You must be at most %s years old", formatNumber(*field.Max)))}
	}
	return nil
}

func (e *Engine) validateEnum(field model.Field, value string) Errors {
	for _, option := range field.Options {
		if option == value {
			return nil
		}
	}
	return Errors{e.failure(field, RuleOption, KindFormat, fmt.Sprintf("%s must be one of %s", label(field), strings.Join(field.Options, ", ")))}
}

// validateCrossField only compares pairs where both sides are visible and
// non-empty to avoid noisy errors while the user is still typing.
func (e *Engine) validateCrossField(step model.Step, values map[string]string) Errors {
	var out Errors
	for _, rule := range step.Rules {
		field, ok := step.Field(rule.Field)
		if !ok {
			continue
		}
		other, ok := step.Field(rule.Other)
		if !ok {
			continue
		}
		if !e.Visible(field, values) || !e.Visible(other, values) {
			continue
		}
		left := strings.TrimSpace(values[field.Name])
		right := strings.TrimSpace(values[other.Name])
		if left == "" || right == "" {
			continue
		}

		same := fmt.Sprint(Normalize(field, left)) == fmt.Sprint(Normalize(other, right))
		switch rule.Rule {
		case model.CrossFieldEquals:
			if !same {
				msg := rule.Message
				if msg == "" {
					msg = fmt.Sprintf("%s must match %s", label(field), label(other))
				}
				out = append(out, Error{Field: field.Name, Rule: RuleMatch, Kind: KindFormat, Message: msg})
			}
		case model.CrossFieldDiffers:
			if same {
				msg := rule.Message
				if msg == "" {
					msg = fmt.Sprintf("%s must differ from %s", label(field), label(other))
				}
				out = append(out, Error{Field: field.Name, Rule: RuleDiffer, Kind: KindFormat, Message: msg})
			}
		}
	}
	return out
}

func (e *Engine) failure(field model.Field, rule string, kind Kind, fallback string) Error {
	msg := fallback
	if custom := strings.TrimSpace(field.Messages[rule]); custom != "" {
		msg = custom
	}
	return Error{Field: field.Name, Rule: rule, Kind: kind, Message: msg}
}

func label(field model.Field) string {
	if field.Label != "" {
		return field.Label
	}
	return field.Name
}

func parseWholeNumber(raw string) (int64, bool) {
	cleaned := strings.NewReplacer(",", "", " ", "", "_", "").Replace(raw)
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
