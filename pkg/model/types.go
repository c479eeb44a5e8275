package model

// FieldKind is the input kind a wizard field collects.
type FieldKind string

const (
	FieldKindText     FieldKind = "text"
	FieldKindNumber   FieldKind = "number"
	FieldKindDate     FieldKind = "date"
	FieldKindEnum     FieldKind = "enum"
	FieldKindCheckbox FieldKind = "checkbox"
)

// Named formats understood by the validation engine.
const (
	FormatMobile      = "mobile"
	FormatPostalCode  = "postal_code"
	FormatTaxID       = "tax_id"
	FormatEmail       = "email"
	FormatDateOfBirth = "date_of_birth"
)

// Cross-field rule identifiers.
const (
	CrossFieldEquals  = "equals"
	CrossFieldDiffers = "differs"
)

// BusinessRule flags a domain failure (for example "annual income below
// minimum") distinct from malformed input. Threshold names a key in
// Definition.Thresholds; Normalize copies its value into Min when Min is unset.
type BusinessRule struct {
	Name      string   `json:"name" yaml:"name"`
	Threshold string   `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Message   string   `json:"message,omitempty" yaml:"message,omitempty"`
}

// Field describes a single wizard input. Names are unique across the whole
// definition because answers and submission payloads are keyed by name.
type Field struct {
	Name       string            `json:"name" yaml:"name"`
	Label      string            `json:"label,omitempty" yaml:"label,omitempty"`
	Help       string            `json:"help,omitempty" yaml:"help,omitempty"`
	Kind       FieldKind         `json:"kind" yaml:"kind"`
	Required   bool              `json:"required,omitempty" yaml:"required,omitempty"`
	RequiredIf string            `json:"requiredIf,omitempty" yaml:"requiredIf,omitempty"`
	VisibleIf  string            `json:"visibleIf,omitempty" yaml:"visibleIf,omitempty"`
	Format     string            `json:"format,omitempty" yaml:"format,omitempty"`
	Pattern    string            `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Min        *float64          `json:"min,omitempty" yaml:"min,omitempty"`
	Max        *float64          `json:"max,omitempty" yaml:"max,omitempty"`
	MinLength  *int              `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength  *int              `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Options    []string          `json:"options,omitempty" yaml:"options,omitempty"`
	Business   []BusinessRule    `json:"business,omitempty" yaml:"business,omitempty"`
	Messages   map[string]string `json:"messages,omitempty" yaml:"messages,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// CrossFieldRule compares two fields of the same step. Failures are reported
// against Field.
type CrossFieldRule struct {
	Rule    string `json:"rule" yaml:"rule"`
	Field   string `json:"field" yaml:"field"`
	Other   string `json:"other" yaml:"other"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Step is one page of related fields with its own validity gate.
type Step struct {
	ID     string           `json:"id" yaml:"id"`
	Title  string           `json:"title,omitempty" yaml:"title,omitempty"`
	Fields []Field          `json:"fields" yaml:"fields"`
	Rules  []CrossFieldRule `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// OTPPolicy names the answer holding the contact that receives the
// verification code once the application is accepted.
type OTPPolicy struct {
	ContactField string `json:"contactField" yaml:"contactField"`
	Channel      string `json:"channel,omitempty" yaml:"channel,omitempty"`
}

// Definition is the ordered, immutable description of a wizard. Kind selects
// the `/applications/{kind}` endpoint and ApplicationType is sent as the
// payload discriminator.
type Definition struct {
	ID              string             `json:"id" yaml:"id"`
	Title           string             `json:"title,omitempty" yaml:"title,omitempty"`
	Kind            string             `json:"kind" yaml:"kind"`
	ApplicationType string             `json:"applicationType" yaml:"applicationType"`
	Steps           []Step             `json:"steps" yaml:"steps"`
	Thresholds      map[string]float64 `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	OTP             OTPPolicy          `json:"otp" yaml:"otp"`
	Metadata        map[string]string  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// StepCount reports the number of steps.
func (d Definition) StepCount() int {
	return len(d.Steps)
}

// FieldStep returns the index of the step owning the named field.
func (d Definition) FieldStep(name string) (int, bool) {
	for idx, step := range d.Steps {
		for _, field := range step.Fields {
			if field.Name == name {
				return idx, true
			}
		}
	}
	return -1, false
}

// Field looks up a field by name across all steps.
func (d Definition) Field(name string) (Field, bool) {
	idx, ok := d.FieldStep(name)
	if !ok {
		return Field{}, false
	}
	field, _ := d.Steps[idx].Field(name)
	return field, true
}

// Field looks up a field inside the step.
func (s Step) Field(name string) (Field, bool) {
	for _, field := range s.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

// Float returns a pointer to v, handy when declaring bounds in Go code.
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}
