package validation

import (
	"strconv"
	"strings"

	"github.com/goliatone/go-formwizard/pkg/model"
)

// Normalize converts a raw answer into the typed value sent to the backend:
// whole numbers become int64, checkboxes become bool, dates use the canonical
// YYYY-MM-DD layout and named formats are canonicalised (tax ids upper-cased).
// Values that do not parse are returned as trimmed strings.
func Normalize(field model.Field, raw string) any {
	trimmed := strings.TrimSpace(raw)
	switch field.Kind {
	case model.FieldKindNumber:
		if n, ok := parseWholeNumber(trimmed); ok {
			return n
		}
	case model.FieldKindCheckbox:
		if trimmed == "" {
			return false
		}
		if b, err := strconv.ParseBool(trimmed); err == nil {
			return b
		}
	case model.FieldKindDate:
		if parsed, ok := parseDate(trimmed); ok {
			return parsed.Format(dateLayouts[0])
		}
	default:
		if field.Format == model.FormatDateOfBirth {
			if parsed, ok := parseDate(trimmed); ok {
				return parsed.Format(dateLayouts[0])
			}
		}
		return canonicalFormat(field.Format, trimmed)
	}
	return trimmed
}
