// Package normalize turns provider payloads and user-entered strings into
// their canonical forms. Use these helpers instead of scattered strings.ToLower
// and strings.TrimSpace calls.
package normalize

import "strings"

// Email trims whitespace and lowercases. Emails are compared and stored in
// this form.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims whitespace.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// ProviderParam lowercases a provider name taken from a URL or query string.
func ProviderParam(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
