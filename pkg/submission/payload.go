package submission

import (
	"strings"

	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/validation"
)

// DiscriminatorKey is the payload key carrying Definition.ApplicationType.
const DiscriminatorKey = "applicationType"

// BuildPayload flattens answers into the backend shape. Only fields visible
// at submission time are included, so an answer left behind by a field that
// was later hidden is never sent. Empty optional answers are omitted;
// checkboxes are always sent as booleans.
func BuildPayload(def model.Definition, engine *validation.Engine, answers map[string]string) map[string]any {
	payload := make(map[string]any)
	for _, step := range def.Steps {
		for _, field := range engine.VisibleFields(step, answers) {
			raw := answers[field.Name]
			if field.Kind != model.FieldKindCheckbox && strings.TrimSpace(raw) == "" {
				continue
			}
			payload[field.Name] = validation.Normalize(field, raw)
		}
	}
	payload[DiscriminatorKey] = def.ApplicationType
	return payload
}
