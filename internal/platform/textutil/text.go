package textutil

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

func policy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// SanitizeLabel strips markup from free text entered at the counter (customer names, notes),
// collapses whitespace and normalises to NFC.
func SanitizeLabel(value string) string {
	cleaned := html.UnescapeString(policy().Sanitize(value))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return norm.NFC.String(cleaned)
}

// NormalizeKey produces a stable map key for categories and payment methods so "Açaí" typed
// with combining marks and "açaí" land in the same bucket.
func NormalizeKey(value string) string {
	trimmed := strings.TrimSpace(norm.NFC.String(value))
	if trimmed == "" {
		return ""
	}
	return cases.Lower(language.BrazilianPortuguese).String(trimmed)
}
