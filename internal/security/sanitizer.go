package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips markup from user-authored text.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer returns a sanitizer using bluemonday's strict policy
// (no elements or attributes survive).
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize removes HTML, NUL bytes, and surrounding whitespace. The result is
// plain text: entities escaped by the policy are decoded back so "a & b"
// round-trips unchanged.
func (s *Sanitizer) Sanitize(in string) string {
	in = strings.ReplaceAll(in, "\x00", "")
	out := html.UnescapeString(s.policy.Sanitize(in))
	return strings.TrimSpace(out)
}
