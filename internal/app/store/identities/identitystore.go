// internal/app/store/identities/identitystore.go
package identitystore

// Terminology: Identity Identifiers
//   - IdentityID / identityID / _id: The ObjectID assigned on insert
//   - ProviderID / provider_id: The provider's stable subject id; unique per provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/stratasocial/internal/app/store/storeutil"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the MongoDB collection holding identities.
const Collection = "identities"

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// classify maps driver errors onto the persistence sentinels.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case wafflemongo.IsDup(err):
		return fmt.Errorf("%s: %w: %v", op, models.ErrPersistenceConflict, err)
	case mongo.IsTimeout(err), mongo.IsNetworkError(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%s: %w: %v", op, models.ErrPersistenceUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// FindByProviderAndProviderID returns the identity for the composite key,
// or (nil, nil) when none exists.
func (s *Store) FindByProviderAndProviderID(ctx context.Context, provider models.ProviderKind, providerID string) (*models.StoredIdentity, error) {
	var si models.StoredIdentity
	err := s.c.FindOne(ctx, bson.M{
		"provider":    provider,
		"provider_id": providerID,
	}).Decode(&si)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find identity", err)
	}
	return &si, nil
}

// Create inserts a new identity. A duplicate (provider, provider_id) fails
// with models.ErrPersistenceConflict.
func (s *Store) Create(ctx context.Context, si models.StoredIdentity) (models.StoredIdentity, error) {
	si.ID = primitive.NewObjectID()
	if _, err := s.c.InsertOne(ctx, si); err != nil {
		return models.StoredIdentity{}, classify("insert identity", err)
	}
	return si, nil
}

// Update overwrites the mutable fields of an existing identity. Email and
// avatar are written even when nil so that removed values are cleared.
// last_login_at goes through $max so an older login finishing late cannot
// move it backwards; the returned identity is the stored document.
func (s *Store) Update(ctx context.Context, si models.StoredIdentity) (models.StoredIdentity, error) {
	set := bson.M{
		"email":        si.Email,
		"display_name": si.DisplayName,
		"avatar_url":   si.AvatarURL,
	}
	update := bson.M{
		"$set": set,
		"$max": bson.M{"last_login_at": si.LastLoginAt},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var out models.StoredIdentity
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": si.ID}, update, opts).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return models.StoredIdentity{}, models.ErrIdentityNotFound
	}
	if err != nil {
		return models.StoredIdentity{}, classify("update identity", err)
	}
	return out, nil
}

// GetByID loads an identity by ObjectID. Returns models.ErrIdentityNotFound
// when missing.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.StoredIdentity, error) {
	var si models.StoredIdentity
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&si)
	if err == mongo.ErrNoDocuments {
		return nil, models.ErrIdentityNotFound
	}
	if err != nil {
		return nil, classify("get identity", err)
	}
	return &si, nil
}

// ExistsByProviderAndProviderID reports whether the composite key is taken.
func (s *Store) ExistsByProviderAndProviderID(ctx context.Context, provider models.ProviderKind, providerID string) (bool, error) {
	count, err := s.c.CountDocuments(ctx, bson.M{
		"provider":    provider,
		"provider_id": providerID,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, classify("count identity", err)
	}
	return count > 0, nil
}

// ListByEmail returns every identity carrying email, across providers.
// Email is not a key; several identities may share one.
func (s *Store) ListByEmail(ctx context.Context, email string) ([]models.StoredIdentity, error) {
	if email == "" {
		return nil, nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "provider", Value: 1}, {Key: "created_at", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"email": email}, opts)
	if err != nil {
		return nil, classify("list identities by email", err)
	}
	defer cur.Close(ctx)

	var out []models.StoredIdentity
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify("decode identities", err)
	}
	return out, nil
}

// Count returns the total number of identities.
func (s *Store) Count(ctx context.Context) (int64, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, classify("count identities", err)
	}
	return n, nil
}

// CountByProvider returns identity counts keyed by provider. Providers with
// no identities are present with a zero count.
func (s *Store) CountByProvider(ctx context.Context) (map[models.ProviderKind]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$provider"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cur, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, classify("count identities by provider", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Provider models.ProviderKind `bson:"_id"`
		Count    int64               `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, classify("decode provider counts", err)
	}

	out := make(map[models.ProviderKind]int64, len(models.AllProviders))
	for _, p := range models.AllProviders {
		out[p.Value] = 0
	}
	for _, r := range rows {
		out[r.Provider] = r.Count
	}
	return out, nil
}

// ListRecent returns identities ordered by most recent login, 1-based page.
func (s *Store) ListRecent(ctx context.Context, limit, page int64) ([]models.StoredIdentity, error) {
	opts := storeutil.Paginate(limit, page).
		SetSort(bson.D{{Key: "last_login_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, classify("list recent identities", err)
	}
	defer cur.Close(ctx)

	var out []models.StoredIdentity
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify("decode identities", err)
	}
	return out, nil
}
