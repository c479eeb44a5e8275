package validation

// Kind separates malformed input from domain refusals so hosts can style
// them differently (inline hint versus eligibility notice).
type Kind string

const (
	KindFormat   Kind = "format"
	KindBusiness Kind = "business"
)

// Rule identifiers reported in Error.Rule. Business failures report the
// BusinessRule name instead.
const (
	RuleRequired  = "required"
	RuleFormat    = "format"
	RulePositive  = "positive"
	RuleMin       = "min"
	RuleMax       = "max"
	RuleMinLength = "minLength"
	RuleMaxLength = "maxLength"
	RuleOption    = "option"
	RuleFuture    = "future"
	RuleMatch     = "match"
	RuleDiffer    = "differ"
	RuleMarkup    = "markup"
)

// Error is a single failed rule for a field.
type Error struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Errors is a step or field error set. A step is valid iff its set is empty.
type Errors []Error

// Empty reports whether the set holds no errors.
func (e Errors) Empty() bool {
	return len(e) == 0
}

// For returns the errors attached to the named field.
func (e Errors) For(field string) Errors {
	var out Errors
	for _, err := range e {
		if err.Field == field {
			out = append(out, err)
		}
	}
	return out
}

// OfKind filters the set by kind.
func (e Errors) OfKind(kind Kind) Errors {
	var out Errors
	for _, err := range e {
		if err.Kind == kind {
			out = append(out, err)
		}
	}
	return out
}

// HasBusiness reports whether any error is a business rejection.
func (e Errors) HasBusiness() bool {
	return len(e.OfKind(KindBusiness)) > 0
}

// Fields lists the distinct field names with errors, in error order.
func (e Errors) Fields() []string {
	var out []string
	seen := make(map[string]struct{}, len(e))
	for _, err := range e {
		if _, ok := seen[err.Field]; ok {
			continue
		}
		seen[err.Field] = struct{}{}
		out = append(out, err.Field)
	}
	return out
}

// Messages groups messages by field name, the shape form renderers expect.
func (e Errors) Messages() map[string][]string {
	if len(e) == 0 {
		return nil
	}
	out := make(map[string][]string)
	for _, err := range e {
		out[err.Field] = append(out[err.Field], err.Message)
	}
	return out
}
