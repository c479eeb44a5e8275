package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goliatone/go-formwizard/pkg/visibility/expr"
)

var errDefinitionIDMissing = errors.New("model: definition id is required")

// DefinitionError collects every problem found while normalising a
// definition so lint output can report them in one pass.
type DefinitionError struct {
	ID       string
	Problems []string
}

func (e *DefinitionError) Error() string {
	if e == nil {
		return ""
	}
	id := e.ID
	if id == "" {
		id = "<unnamed>"
	}
	return fmt.Sprintf("model: definition %q is invalid: %s", id, strings.Join(e.Problems, "; "))
}

func (e *DefinitionError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Normalize returns a validated deep copy of the definition with defaults
// applied (field kind, application kind and type) and business thresholds
// resolved. Problems are reported as a *DefinitionError.
func (d Definition) Normalize() (Definition, error) {
	out := d.Clone()
	out.ID = strings.TrimSpace(out.ID)
	if out.ID == "" {
		return Definition{}, errDefinitionIDMissing
	}
	if strings.TrimSpace(out.Kind) == "" {
		out.Kind = out.ID
	}
	if strings.TrimSpace(out.ApplicationType) == "" {
		out.ApplicationType = out.ID
	}

	problems := &DefinitionError{ID: out.ID}
	if len(out.Steps) == 0 {
		problems.add("at least one step is required")
	}

	known := make(map[string]FieldKind)
	stepIDs := make(map[string]struct{}, len(out.Steps))
	for si := range out.Steps {
		step := &out.Steps[si]
		step.ID = strings.TrimSpace(step.ID)
		if step.ID == "" {
			problems.add("step %d has no id", si)
		} else if _, dup := stepIDs[step.ID]; dup {
			problems.add("duplicate step id %q", step.ID)
		}
		stepIDs[step.ID] = struct{}{}

		if len(step.Fields) == 0 {
			problems.add("step %q has no fields", step.ID)
		}
		for fi := range step.Fields {
			field := &step.Fields[fi]
			field.Name = strings.TrimSpace(field.Name)
			if field.Kind == "" {
				field.Kind = FieldKindText
			}
			if field.Name == "" {
				problems.add("step %q field %d has no name", step.ID, fi)
				continue
			}
			if _, dup := known[field.Name]; dup {
				problems.add("duplicate field name %q", field.Name)
			}
			known[field.Name] = field.Kind
		}
	}

	for si := range out.Steps {
		step := &out.Steps[si]
		for fi := range step.Fields {
			normalizeField(&step.Fields[fi], out.Thresholds, known, problems)
		}
		for _, rule := range step.Rules {
			checkCrossFieldRule(*step, rule, problems)
		}
	}

	if contact := strings.TrimSpace(out.OTP.ContactField); contact != "" {
		if _, ok := known[contact]; !ok {
			problems.add("otp contact field %q is not defined", contact)
		}
		out.OTP.ContactField = contact
	}

	if len(problems.Problems) > 0 {
		return Definition{}, problems
	}
	return out, nil
}

func normalizeField(field *Field, thresholds map[string]float64, known map[string]FieldKind, problems *DefinitionError) {
	if field.Name == "" {
		return
	}

	switch field.Kind {
	case FieldKindText, FieldKindNumber, FieldKindDate, FieldKindCheckbox:
	case FieldKindEnum:
		if len(field.Options) == 0 {
			problems.add("enum field %q has no options", field.Name)
		}
	default:
		problems.add("field %q has unknown kind %q", field.Name, field.Kind)
	}

	switch field.Format {
	case "", FormatMobile, FormatPostalCode, FormatTaxID, FormatEmail:
	case FormatDateOfBirth:
		if field.Kind != FieldKindDate && field.Kind != FieldKindText {
			problems.add("field %q uses date_of_birth format on a %s field", field.Name, field.Kind)
		}
	default:
		problems.add("field %q has unknown format %q", field.Name, field.Format)
	}

	if field.Pattern != "" {
		if _, err := regexp.Compile(field.Pattern); err != nil {
			problems.add("field %q pattern does not compile: %v", field.Name, err)
		}
	}
	if field.Min != nil && field.Max != nil && *field.Min > *field.Max {
		problems.add("field %q min %v exceeds max %v", field.Name, *field.Min, *field.Max)
	}

	for _, rule := range []struct{ label, source string }{
		{"visibleIf", field.VisibleIf},
		{"requiredIf", field.RequiredIf},
	} {
		if strings.TrimSpace(rule.source) == "" {
			continue
		}
		program, err := expr.Parse(rule.source)
		if err != nil {
			problems.add("field %q %s: %v", field.Name, rule.label, err)
			continue
		}
		for _, ident := range program.Identifiers() {
			if strings.HasPrefix(ident, "extras.") {
				continue
			}
			if _, ok := known[ident]; !ok {
				problems.add("field %q %s references unknown field %q", field.Name, rule.label, ident)
			}
		}
	}

	for bi := range field.Business {
		rule := &field.Business[bi]
		if field.Kind != FieldKindNumber {
			problems.add("field %q declares business rule %q but is not a number", field.Name, rule.Name)
		}
		if strings.TrimSpace(rule.Name) == "" {
			problems.add("field %q has a business rule without a name", field.Name)
		}
		if rule.Threshold != "" && rule.Min == nil {
			value, ok := thresholds[rule.Threshold]
			if !ok {
				problems.add("field %q business rule %q references unknown threshold %q", field.Name, rule.Name, rule.Threshold)
				continue
			}
			rule.Min = Float(value)
		}
		if rule.Min == nil && rule.Max == nil {
			problems.add("field %q business rule %q has no bound", field.Name, rule.Name)
		}
	}
}

func checkCrossFieldRule(step Step, rule CrossFieldRule, problems *DefinitionError) {
	switch rule.Rule {
	case CrossFieldEquals, CrossFieldDiffers:
	default:
		problems.add("step %q has unknown cross-field rule %q", step.ID, rule.Rule)
	}
	for _, name := range []string{rule.Field, rule.Other} {
		if _, ok := step.Field(name); !ok {
			problems.add("step %q cross-field rule references %q outside the step", step.ID, name)
		}
	}
}

// Clone returns a deep copy so callers can hand definitions out without
// exposing internal slices or maps.
func (d Definition) Clone() Definition {
	out := d
	out.Thresholds = cloneFloatMap(d.Thresholds)
	out.Metadata = cloneStringMap(d.Metadata)
	if d.Steps != nil {
		out.Steps = make([]Step, len(d.Steps))
		for i, step := range d.Steps {
			out.Steps[i] = step.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	out := s
	if s.Fields != nil {
		out.Fields = make([]Field, len(s.Fields))
		for i, field := range s.Fields {
			out.Fields[i] = field.Clone()
		}
	}
	if s.Rules != nil {
		out.Rules = append([]CrossFieldRule(nil), s.Rules...)
	}
	return out
}

// Clone returns a deep copy of the field.
func (f Field) Clone() Field {
	out := f
	out.Min = cloneFloat(f.Min)
	out.Max = cloneFloat(f.Max)
	out.MinLength = cloneInt(f.MinLength)
	out.MaxLength = cloneInt(f.MaxLength)
	if f.Options != nil {
		out.Options = append([]string(nil), f.Options...)
	}
	if f.Business != nil {
		out.Business = make([]BusinessRule, len(f.Business))
		for i, rule := range f.Business {
			rule.Min = cloneFloat(rule.Min)
			rule.Max = cloneFloat(rule.Max)
			out.Business[i] = rule
		}
	}
	out.Messages = cloneStringMap(f.Messages)
	out.Metadata = cloneStringMap(f.Metadata)
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	value := *v
	return &value
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	value := *v
	return &value
}

func cloneStringMap(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func cloneFloatMap(src map[string]float64) map[string]float64 {
	if src == nil {
		return nil
	}
	out := make(map[string]float64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
