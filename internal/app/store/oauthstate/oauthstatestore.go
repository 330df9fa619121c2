// internal/app/store/oauthstate/oauthstatestore.go
package oauthstate

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/dalemusser/stratasocial/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// TTL is how long a state token stays valid.
const TTL = 10 * time.Minute

// State is a pending login: the CSRF state value handed to the provider and
// the provider it was issued for.
type State struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty"`
	State     string              `bson:"state"`
	Provider  models.ProviderKind `bson:"provider"`
	ExpiresAt time.Time           `bson:"expires_at"`
	CreatedAt time.Time           `bson:"created_at"`
}

// Store provides access to the oauth_states collection.
type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

// New creates a new OAuth state store.
func New(db *mongo.Database) *Store {
	return &Store{
		c:   db.Collection("oauth_states"),
		now: time.Now,
	}
}

// Generate returns a fresh random state value.
func Generate() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Create stores state for provider. It expires after TTL.
func (s *Store) Create(ctx context.Context, state string, provider models.ProviderKind) error {
	now := s.now().UTC()
	doc := State{
		ID:        primitive.NewObjectID(),
		State:     state,
		Provider:  provider,
		ExpiresAt: now.Add(TTL),
		CreatedAt: now,
	}
	_, err := s.c.InsertOne(ctx, doc)
	return err
}

// Verify consumes state and reports whether it was live and issued for
// provider. A state is accepted at most once, even when the provider does
// not match.
func (s *Store) Verify(ctx context.Context, state string, provider models.ProviderKind) bool {
	if state == "" {
		return false
	}
	var doc State
	err := s.c.FindOneAndDelete(ctx, bson.M{
		"state":      state,
		"expires_at": bson.M{"$gt": s.now().UTC()},
	}).Decode(&doc)
	if err != nil {
		return false
	}
	return doc.Provider == provider
}

// DeleteExpired removes states past their expiry. The TTL index does the
// same lazily; this keeps the collection tidy between TTL monitor passes.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": s.now().UTC()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
