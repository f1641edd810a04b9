package interpret

import "strings"

// Normalize lower-cases, trims and collapses whitespace so extractors see one canonical form.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}
