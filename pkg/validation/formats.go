package validation

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-formwizard/pkg/model"
)

var (
	mobilePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	postalPattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	taxIDPattern  = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// dateLayouts lists the accepted date inputs; the first one is canonical.
var dateLayouts = []string{"2006-01-02", "02/01/2006"}

var patternCache sync.Map

func compiledPattern(expr string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(expr); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	patternCache.Store(expr, re)
	return re, nil
}

// canonicalFormat rewrites raw input the way the named format stores it:
// mobile numbers lose spaces and hyphens, tax ids are upper-cased.
func canonicalFormat(format, raw string) string {
	switch format {
	case model.FormatMobile:
		return strings.NewReplacer(" ", "", "-", "").Replace(raw)
	case model.FormatTaxID:
		return strings.ToUpper(raw)
	case model.FormatPostalCode:
		return strings.ReplaceAll(raw, " ", "")
	case model.FormatEmail:
		return strings.ToLower(raw)
	default:
		return raw
	}
}

func matchesFormat(format, value string) bool {
	switch format {
	case model.FormatMobile:
		return mobilePattern.MatchString(value)
	case model.FormatPostalCode:
		return postalPattern.MatchString(value)
	case model.FormatTaxID:
		return taxIDPattern.MatchString(value)
	case model.FormatEmail:
		return emailPattern.MatchString(value)
	default:
		return true
	}
}

func formatDescription(format string) string {
	switch format {
	case model.FormatMobile:
		return "a 10-digit mobile number starting with 6, 7, 8 or 9"
	case model.FormatPostalCode:
		return "a 6-digit postal code not starting with 0"
	case model.FormatTaxID:
		return "5 letters, 4 digits and 1 letter (for example ABCDE1234F)"
	case model.FormatEmail:
		return "a valid email address"
	default:
		return "in the expected format"
	}
}

// parseDate accepts the supported layouts. time.Parse rejects impossible
// calendar dates such as 2023-02-30.
func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// ageOn computes completed years between birth and day.
func ageOn(birth, day time.Time) int {
	years := day.Year() - birth.Year()
	if day.Month() < birth.Month() || (day.Month() == birth.Month() && day.Day() < birth.Day()) {
		years--
	}
	return years
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
