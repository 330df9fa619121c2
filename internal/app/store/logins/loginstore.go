// internal/app/store/logins/loginstore.go
package loginstore

// Terminology: Identity Identifiers
//   - IdentityID / identity_id: The stored identity's ObjectID
//   - AttemptID / attempt_id: Per-callback correlation id, also logged

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/stratasocial/internal/app/store/storeutil"
	"github.com/dalemusser/stratasocial/internal/app/system/network"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("login_records")}
}

// Create inserts a LoginRecord. If CreatedAt is zero, it's set to time.Now().UTC().
func (s *Store) Create(ctx context.Context, rec models.LoginRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	_, err := s.c.InsertOne(ctx, rec)
	return err
}

// CreateFrom builds a LoginRecord for a resolved identity from the HTTP
// request (client IP and user agent) and inserts it.
func (s *Store) CreateFrom(ctx context.Context, r *http.Request, si models.StoredIdentity, attemptID string, firstLogin bool) error {
	rec := models.LoginRecord{
		IdentityID: si.ID,
		Provider:   si.Provider,
		AttemptID:  attemptID,
		FirstLogin: firstLogin,
		IP:         network.GetClientIP(r),
		UserAgent:  r.UserAgent(),
		CreatedAt:  time.Now().UTC(),
	}
	return s.Create(ctx, rec)
}

// GetByIdentity returns an identity's login records, newest first.
func (s *Store) GetByIdentity(ctx context.Context, identityID primitive.ObjectID, limit int64) ([]models.LoginRecord, error) {
	if limit <= 0 {
		limit = storeutil.DefaultPageSize
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, bson.M{"identity_id": identityID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var records []models.LoginRecord
	if err := cur.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// CountSince returns the number of logins at or after since, per provider.
func (s *Store) CountSince(ctx context.Context, since time.Time) (map[models.ProviderKind]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"created_at": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$provider"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cur, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Provider models.ProviderKind `bson:"_id"`
		Count    int64               `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
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
