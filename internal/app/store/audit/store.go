// internal/app/store/audit/store.go
package audit

// Terminology: Identity Identifiers
//   - IdentityID / identity_id: The stored identity's ObjectID
//   - AttemptID / attempt_id: Per-callback correlation id

import (
	"context"
	"time"

	"github.com/dalemusser/stratasocial/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryAuth     = "auth"
	CategoryIdentity = "identity"
)

// Auth event types
const (
	EventLoginStarted = "login_started"
	EventLoginSuccess = "login_success"
	EventLoginFailed  = "login_failed"
	EventLogout       = "logout"
)

// Identity event types
const (
	EventIdentityCreated  = "identity_created"
	EventConflictResolved = "identity_conflict_resolved"
)

// Event represents an audit event.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	CreatedAt time.Time          `bson:"created_at"`

	Category  string `bson:"category"`
	EventType string `bson:"event_type"`

	IdentityID *primitive.ObjectID `bson:"identity_id,omitempty"`
	Provider   models.ProviderKind `bson:"provider,omitempty"`
	AttemptID  string              `bson:"attempt_id,omitempty"`

	IP        string `bson:"ip"`
	UserAgent string `bson:"user_agent,omitempty"`

	Success       bool   `bson:"success"`
	FailureReason string `bson:"failure_reason,omitempty"` // callback error code

	Details map[string]string `bson:"details,omitempty"`
}

// QueryFilter defines filters for querying audit events.
type QueryFilter struct {
	IdentityID *primitive.ObjectID
	Provider   models.ProviderKind
	Category   string
	EventType  string
	Success    *bool
	Since      *time.Time
	Limit      int64
	Offset     int64
}

func (f QueryFilter) bson() bson.M {
	q := bson.M{}
	if f.IdentityID != nil {
		q["identity_id"] = *f.IdentityID
	}
	if f.Provider != "" {
		q["provider"] = f.Provider
	}
	if f.Category != "" {
		q["category"] = f.Category
	}
	if f.EventType != "" {
		q["event_type"] = f.EventType
	}
	if f.Success != nil {
		q["success"] = *f.Success
	}
	if f.Since != nil {
		q["created_at"] = bson.M{"$gte": *f.Since}
	}
	return q
}

// Store manages audit event records.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_logs")}
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

// Query retrieves audit events matching filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cursor, err := s.c.Find(ctx, filter.bson(), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CountByFilter returns the count of events matching filter.
func (s *Store) CountByFilter(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, filter.bson())
}

// GetByIdentity retrieves recent audit events for one identity.
func (s *Store) GetByIdentity(ctx context.Context, identityID primitive.ObjectID, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{IdentityID: &identityID, Limit: limit})
}

// GetFailedLogins retrieves failed login attempts since the given time.
func (s *Store) GetFailedLogins(ctx context.Context, since time.Time, limit int64) ([]Event, error) {
	failed := false
	return s.Query(ctx, QueryFilter{
		Category:  CategoryAuth,
		EventType: EventLoginFailed,
		Success:   &failed,
		Since:     &since,
		Limit:     limit,
	})
}
