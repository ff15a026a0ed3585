package textutil

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeText strips all HTML markup from free-form user input.
func SanitizeText(value string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(value))
}

// SanitizeStringMap normalizes a metadata map and strips markup from values.
func SanitizeStringMap(values map[string]string) map[string]string {
	normalized := NormalizeStringMap(values)
	if len(normalized) == 0 {
		return nil
	}
	for key, value := range normalized {
		normalized[key] = SanitizeText(value)
	}
	return normalized
}
