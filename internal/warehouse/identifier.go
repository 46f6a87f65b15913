package warehouse

import (
	"regexp"
	"strings"
)

var (
	nonIdent  = regexp.MustCompile(`[^a-z0-9_]`)
	underRun  = regexp.MustCompile(`_+`)
	digitLead = regexp.MustCompile(`^[0-9]`)
)

// NormalizeIdentifier maps arbitrary column/schema/table text to a SQL-safe
// identifier: lowercased, every non-alphanumeric run collapsed to one
// underscore, and a "col_" prefix when the result would start with a digit.
// Idempotent: normalizing a normalized name is a no-op. All identifiers that
// reach SQL text go through here first; nothing caller-supplied is ever
// interpolated raw.
func NormalizeIdentifier(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonIdent.ReplaceAllString(s, "_")
	s = underRun.ReplaceAllString(s, "_")
	if digitLead.MatchString(s) {
		s = "col_" + s
	}
	return s
}
