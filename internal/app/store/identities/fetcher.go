// internal/app/store/identities/fetcher.go
package identitystore

import (
	"context"
	"errors"

	"github.com/dalemusser/stratasocial/internal/app/system/auth"
	"github.com/dalemusser/stratasocial/internal/app/system/timeouts"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Getter loads one identity by id. Both identity backends implement it.
type Getter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.StoredIdentity, error)
}

// Fetcher implements auth.IdentityFetcher over any Getter.
type Fetcher struct {
	store  Getter
	logger *zap.Logger
}

// NewFetcher creates a Fetcher reading from store.
func NewFetcher(store Getter, logger *zap.Logger) *Fetcher {
	return &Fetcher{store: store, logger: logger}
}

// FetchIdentity returns the view-safe principal for identityID, or nil when
// the id is invalid, the identity is gone, or the store fails.
func (f *Fetcher) FetchIdentity(ctx context.Context, identityID string) *auth.SessionUser {
	oid, err := primitive.ObjectIDFromHex(identityID)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	si, err := f.store.GetByID(ctx, oid)
	if err != nil {
		if !errors.Is(err, models.ErrIdentityNotFound) {
			f.logger.Warn("identity fetch failed",
				zap.String("identity_id", identityID),
				zap.Error(err))
		}
		return nil
	}
	return auth.SessionUserFromIdentity(*si)
}
