package validation

import (
	"html"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	markupPolicyOnce sync.Once
	markupPolicy     *bluemonday.Policy
)

// containsMarkup reports whether the strict policy would alter the visible
// text of value. That covers tags, partial tags such as "A<B" and
// entity-encoded markup. Plain text, including "&" and quotes, passes.
// Answers are never rewritten; a positive result becomes a format error.
func containsMarkup(value string) bool {
	cleaned := strictPolicy().Sanitize(value)
	return html.UnescapeString(cleaned) != value
}

func strictPolicy() *bluemonday.Policy {
	markupPolicyOnce.Do(func() {
		markupPolicy = bluemonday.StrictPolicy()
	})
	return markupPolicy
}
