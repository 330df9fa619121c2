// internal/domain/models/identity.go
package models

// Terminology: Identity Identifiers
//   - IdentityID / identityID / _id: The ObjectID assigned by the store, never reused
//   - ProviderID / provider_id: The provider's stable subject id (never the login/username)

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CanonicalIdentity is the provider-agnostic result of normalizing one
// user-info payload. It lives for a single authentication request.
type CanonicalIdentity struct {
	Provider      ProviderKind `validate:"required,oneof=github google facebook"`
	ProviderID    string       `validate:"required,max=255"`
	DisplayName   string       `validate:"max=255"`
	Email         *string      `validate:"omitempty,max=320"`
	AvatarURL     *string      `validate:"omitempty,url,max=500"`
	RawAttributes Attributes   `validate:"-"` // display only, never used for resolution
}

// StoredIdentity is the persisted record for one provider account.
//
// Provider and ProviderID form a unique composite key. Email, DisplayName
// and AvatarURL are overwritten on every login. CreatedAt is written once.
type StoredIdentity struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Provider    ProviderKind       `bson:"provider" json:"provider"`
	ProviderID  string             `bson:"provider_id" json:"provider_id"`
	Email       *string            `bson:"email" json:"email,omitempty"` // lowercase, optional, not unique
	DisplayName string             `bson:"display_name" json:"display_name"`
	AvatarURL   *string            `bson:"avatar_url" json:"avatar_url,omitempty"`

	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	LastLoginAt time.Time `bson:"last_login_at" json:"last_login_at"`
}

// IdentityKey is the composite key that identifies an account at a provider.
type IdentityKey struct {
	Provider   ProviderKind
	ProviderID string
}

// Key returns the composite key of the canonical identity.
func (c CanonicalIdentity) Key() IdentityKey {
	return IdentityKey{Provider: c.Provider, ProviderID: c.ProviderID}
}

// Key returns the composite key of the stored identity.
func (s StoredIdentity) Key() IdentityKey {
	return IdentityKey{Provider: s.Provider, ProviderID: s.ProviderID}
}

// EmailValue returns the email or "" when absent.
func (s StoredIdentity) EmailValue() string {
	if s.Email == nil {
		return ""
	}
	return *s.Email
}

// AvatarValue returns the avatar URL or "" when absent.
func (s StoredIdentity) AvatarValue() string {
	if s.AvatarURL == nil {
		return ""
	}
	return *s.AvatarURL
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
