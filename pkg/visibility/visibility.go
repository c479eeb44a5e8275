package visibility

// Evaluator decides whether a predicate attached to a wizard field holds for
// the answers collected so far. The same contract serves "visible if" and
// "required if" rules.
type Evaluator interface {
	Eval(fieldName, rule string, ctx Context) (bool, error)
}

// Context provides inputs to an Evaluator. Values holds the current answers
// keyed by field name while Extras lets hosts inject outside facts such as a
// product code or feature flag (addressed as `extras.name` inside rules).
type Context struct {
	Values map[string]any
	Extras map[string]any
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(fieldName, rule string, ctx Context) (bool, error)

// Eval delegates to the underlying function.
func (fn EvaluatorFunc) Eval(fieldName, rule string, ctx Context) (bool, error) {
	return fn(fieldName, rule, ctx)
}

// FromAnswers builds a Context from raw wizard answers.
func FromAnswers(answers map[string]string) Context {
	values := make(map[string]any, len(answers))
	for name, value := range answers {
		values[name] = value
	}
	return Context{Values: values}
}
