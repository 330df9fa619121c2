// internal/domain/models/errors.go
package models

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistenceConflict is wrapped by stores when a create hits the
	// (provider, provider_id) uniqueness constraint.
	ErrPersistenceConflict = errors.New("identity already exists for provider and provider id")

	// ErrPersistenceUnavailable is wrapped by stores when the backend is
	// unreachable, timed out, or busy.
	ErrPersistenceUnavailable = errors.New("identity store unavailable")

	// ErrIdentityNotFound is returned when an update targets a record that no longer exists.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrConflictUnresolved is returned by the resolver when a create still
	// conflicts after the read-after-conflict retry.
	ErrConflictUnresolved = errors.New("identity conflict persisted after retry")
)

// UnsupportedProviderError reports a provider value outside the supported set.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported identity provider %q", e.Provider)
}

// MalformedPayloadError reports a provider payload that is missing a required
// field or carries a field of an incompatible shape.
type MalformedPayloadError struct {
	Provider ProviderKind
	Field    string
	Reason   string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: field %q %s", e.Provider, e.Field, e.Reason)
}
