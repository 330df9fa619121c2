// internal/domain/models/provider.go
package models

import "strings"

// ProviderKind identifies a third-party identity provider.
// The set is closed: adding a provider means adding a constant here,
// an option in AllProviders, and an extraction rule in normalize.Identity.
type ProviderKind string

const (
	ProviderGitHub   ProviderKind = "github"
	ProviderGoogle   ProviderKind = "google"
	ProviderFacebook ProviderKind = "facebook"
)

// ProviderOption pairs a provider with its display label.
type ProviderOption struct {
	Value ProviderKind // The value stored in the database
	Label string       // The display label in the UI
}

// AllProviders lists every supported provider in display order.
var AllProviders = []ProviderOption{
	{Value: ProviderGitHub, Label: "GitHub"},
	{Value: ProviderGoogle, Label: "Google"},
	{Value: ProviderFacebook, Label: "Facebook"},
}

// IsValid reports whether p is one of the supported providers.
func (p ProviderKind) IsValid() bool {
	for _, o := range AllProviders {
		if o.Value == p {
			return true
		}
	}
	return false
}

// Label returns the display label, or the raw value for unknown providers.
func (p ProviderKind) Label() string {
	for _, o := range AllProviders {
		if o.Value == p {
			return o.Label
		}
	}
	return string(p)
}

func (p ProviderKind) String() string {
	return string(p)
}

// ParseProvider converts a route or config value into a ProviderKind.
// Matching ignores case and surrounding whitespace.
func ParseProvider(s string) (ProviderKind, error) {
	p := ProviderKind(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", &UnsupportedProviderError{Provider: s}
	}
	return p, nil
}

// AllProviderValues returns the provider values as strings.
func AllProviderValues() []string {
	values := make([]string, len(AllProviders))
	for i, o := range AllProviders {
		values[i] = string(o.Value)
	}
	return values
}
