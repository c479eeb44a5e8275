package definition

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formwizard/pkg/model"
)

// Vendor extensions read from OpenAPI documents.
const (
	ExtSteps           = "x-wizard-steps"
	ExtOTPContact      = "x-wizard-otp-contact"
	ExtThresholds      = "x-wizard-thresholds"
	ExtApplicationType = "x-wizard-application-type"
	ExtStep            = "x-wizard-step"
	ExtOrder           = "x-wizard-order"
	ExtFormat          = "x-wizard-format"
	ExtVisibleIf       = "x-wizard-visible-if"
	ExtRequiredIf      = "x-wizard-required-if"
	ExtMinThreshold    = "x-wizard-min-threshold"
	ExtLabel           = "x-wizard-label"
)

const defaultStepID = "details"

var errOperationNotFound = errors.New("definition: operation not found")

// FromOpenAPI builds a definition from the JSON request body of the POST
// operation with the given operationId. Properties are grouped into steps
// through x-wizard-step and ordered by x-wizard-order, then by name. The
// returned definition is normalised.
func FromOpenAPI(ctx context.Context, data []byte, operationID string) (model.Definition, error) {
	if err := ctx.Err(); err != nil {
		return model.Definition{}, err
	}
	if len(data) == 0 {
		return model.Definition{}, errors.New("definition: openapi document is empty")
	}

	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return model.Definition{}, fmt.Errorf("definition: load openapi document: %w", err)
	}
	if doc.Paths == nil || doc.Paths.Len() == 0 {
		return model.Definition{}, errors.New("definition: openapi document does not contain any paths")
	}

	var (
		route string
		op    *openapi3.Operation
	)
	for p, item := range doc.Paths.Map() {
		if item == nil || item.Post == nil {
			continue
		}
		if item.Post.OperationID == operationID {
			route, op = p, item.Post
			break
		}
	}
	if op == nil {
		return model.Definition{}, fmt.Errorf("%w: %q", errOperationNotFound, operationID)
	}

	body := requestSchema(op.RequestBody)
	if body == nil || len(body.Properties) == 0 {
		return model.Definition{}, fmt.Errorf("definition: operation %q has no request body properties", operationID)
	}

	def := model.Definition{
		ID:              operationID,
		Title:           op.Summary,
		Kind:            path.Base(strings.TrimRight(route, "/")),
		ApplicationType: stringExtension(op.Extensions, ExtApplicationType),
		OTP:             model.OTPPolicy{ContactField: stringExtension(op.Extensions, ExtOTPContact)},
	}
	thresholds, err := thresholdsExtension(op.Extensions[ExtThresholds])
	if err != nil {
		return model.Definition{}, fmt.Errorf("definition: operation %q: %w", operationID, err)
	}
	def.Thresholds = thresholds

	steps, index := declaredSteps(op.Extensions[ExtSteps])
	fields, err := convertProperties(body)
	if err != nil {
		return model.Definition{}, fmt.Errorf("definition: operation %q: %w", operationID, err)
	}
	for _, entry := range fields {
		stepID := entry.step
		if stepID == "" {
			stepID = defaultStepID
			if len(steps) > 0 {
				stepID = steps[0].ID
			}
		}
		pos, ok := index[stepID]
		if !ok {
			pos = len(steps)
			index[stepID] = pos
			steps = append(steps, model.Step{ID: stepID})
		}
		steps[pos].Fields = append(steps[pos].Fields, entry.field)
	}
	def.Steps = steps

	return def.Normalize()
}

func requestSchema(body *openapi3.RequestBodyRef) *openapi3.Schema {
	if body == nil || body.Value == nil {
		return nil
	}
	mt, ok := body.Value.Content["application/json"]
	if !ok || mt.Schema == nil {
		return nil
	}
	return mt.Schema.Value
}

type propertyEntry struct {
	field model.Field
	step  string
	order float64
}

func convertProperties(schema *openapi3.Schema) ([]propertyEntry, error) {
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	entries := make([]propertyEntry, 0, len(schema.Properties))
	for name, ref := range schema.Properties {
		if ref == nil || ref.Value == nil {
			continue
		}
		field, err := convertProperty(name, ref.Value, required[name])
		if err != nil {
			return nil, err
		}
		order, hasOrder := numberExtension(ref.Value.Extensions[ExtOrder])
		if !hasOrder {
			order = 1 << 20
		}
		entries = append(entries, propertyEntry{
			field: field,
			step:  stringExtension(ref.Value.Extensions, ExtStep),
			order: order,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].order != entries[j].order {
			return entries[i].order < entries[j].order
		}
		return entries[i].field.Name < entries[j].field.Name
	})
	return entries, nil
}

func convertProperty(name string, src *openapi3.Schema, required bool) (model.Field, error) {
	field := model.Field{
		Name:       name,
		Label:      stringExtension(src.Extensions, ExtLabel),
		Help:       src.Description,
		Required:   required,
		VisibleIf:  stringExtension(src.Extensions, ExtVisibleIf),
		RequiredIf: stringExtension(src.Extensions, ExtRequiredIf),
		Pattern:    src.Pattern,
	}
	if field.Label == "" {
		field.Label = src.Title
	}

	switch kind := firstSchemaType(src.Type); {
	case len(src.Enum) > 0:
		field.Kind = model.FieldKindEnum
		for _, value := range src.Enum {
			field.Options = append(field.Options, fmt.Sprint(value))
		}
	case kind == "boolean":
		field.Kind = model.FieldKindCheckbox
	case kind == "integer" || kind == "number":
		field.Kind = model.FieldKindNumber
	case kind == "string" && (src.Format == "date" || src.Format == "date-time"):
		field.Kind = model.FieldKindDate
	default:
		field.Kind = model.FieldKindText
	}

	field.Format = stringExtension(src.Extensions, ExtFormat)
	if field.Format == "" && src.Format == "email" {
		field.Format = model.FormatEmail
	}

	if src.Min != nil {
		field.Min = model.Float(*src.Min)
	}
	if src.Max != nil {
		field.Max = model.Float(*src.Max)
	}
	if src.MinLength != 0 {
		field.MinLength = model.Int(int(src.MinLength))
	}
	if src.MaxLength != nil {
		field.MaxLength = model.Int(int(*src.MaxLength))
	}

	if raw, ok := src.Extensions[ExtMinThreshold]; ok {
		rule, err := businessExtension(raw)
		if err != nil {
			return model.Field{}, fmt.Errorf("property %q: %w", name, err)
		}
		field.Business = append(field.Business, rule)
	}
	return field, nil
}

func firstSchemaType(types *openapi3.Types) string {
	if types == nil {
		return ""
	}
	values := types.Slice()
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// businessExtension accepts either the threshold key as a string or an
// object with name, threshold and message.
func businessExtension(raw any) (model.BusinessRule, error) {
	switch value := raw.(type) {
	case string:
		key := strings.TrimSpace(value)
		if key == "" {
			break
		}
		return model.BusinessRule{Name: key, Threshold: key}, nil
	case map[string]any:
		rule := model.BusinessRule{
			Name:      stringValue(value["name"]),
			Threshold: stringValue(value["threshold"]),
			Message:   stringValue(value["message"]),
		}
		if rule.Threshold == "" {
			break
		}
		if rule.Name == "" {
			rule.Name = rule.Threshold
		}
		return rule, nil
	}
	return model.BusinessRule{}, fmt.Errorf("%s must name a threshold", ExtMinThreshold)
}

func declaredSteps(raw any) ([]model.Step, map[string]int) {
	index := make(map[string]int)
	items, ok := raw.([]any)
	if !ok {
		return nil, index
	}
	steps := make([]model.Step, 0, len(items))
	for _, item := range items {
		var step model.Step
		switch value := item.(type) {
		case string:
			step.ID = strings.TrimSpace(value)
		case map[string]any:
			step.ID = strings.TrimSpace(stringValue(value["id"]))
			step.Title = stringValue(value["title"])
		}
		if step.ID == "" {
			continue
		}
		if _, dup := index[step.ID]; dup {
			continue
		}
		index[step.ID] = len(steps)
		steps = append(steps, step)
	}
	return steps, index
}

func thresholdsExtension(raw any) (map[string]float64, error) {
	if raw == nil {
		return nil, nil
	}
	values, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object", ExtThresholds)
	}
	out := make(map[string]float64, len(values))
	for key, value := range values {
		number, ok := numberExtension(value)
		if !ok {
			return nil, fmt.Errorf("%s.%s is not a number", ExtThresholds, key)
		}
		out[key] = number
	}
	return out, nil
}

func stringExtension(ext map[string]any, key string) string {
	if ext == nil {
		return ""
	}
	return strings.TrimSpace(stringValue(ext[key]))
}

func stringValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

func numberExtension(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}
