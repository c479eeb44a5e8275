package model

// Decorator adjusts a definition after it is loaded and before it is
// normalised, for example to apply per-deployment threshold overrides.
type Decorator interface {
	Decorate(*Definition) error
}

// DecoratorFunc adapts a function into a Decorator.
type DecoratorFunc func(*Definition) error

// Decorate calls the underlying function.
func (fn DecoratorFunc) Decorate(def *Definition) error {
	return fn(def)
}

// ThresholdOverrides returns a Decorator that replaces threshold values for
// the named definition. Unknown definitions are left untouched.
func ThresholdOverrides(overrides map[string]map[string]float64) Decorator {
	return DecoratorFunc(func(def *Definition) error {
		if def == nil {
			return nil
		}
		values, ok := overrides[def.ID]
		if !ok || len(values) == 0 {
			return nil
		}
		if def.Thresholds == nil {
			def.Thresholds = make(map[string]float64, len(values))
		}
		for key, value := range values {
			def.Thresholds[key] = value
		}
		return nil
	})
}
