// internal/app/store/sessions/store.go
package sessions

// Terminology: Identity Identifiers
//   - IdentityID / identity_id: The stored identity's ObjectID
//   - Token: The random session token also carried in the signed cookie

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratasocial/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// DefaultTTL is the tracked-session lifetime used when ExpiresAt is unset.
const DefaultTTL = 30 * 24 * time.Hour

// Session end reasons
const (
	EndReasonLogout  = "logout"
	EndReasonExpired = "expired"
)

// ErrNotFound is returned when no live session matches a token.
var ErrNotFound = errors.New("session not found")

// Session is the server-side record of one signed-in browser.
type Session struct {
	ID         primitive.ObjectID  `bson:"_id,omitempty"`
	Token      string              `bson:"token"`
	IdentityID primitive.ObjectID  `bson:"identity_id"`
	Provider   models.ProviderKind `bson:"provider"`
	IPAddress  string              `bson:"ip_address,omitempty"`
	UserAgent  string              `bson:"user_agent,omitempty"`

	// Profile is the provider payload of this sign-in as JSON. It lives only
	// as long as the session and is cleared when the session ends.
	Profile string `bson:"profile,omitempty"`

	LoginAt      time.Time  `bson:"login_at"`
	LogoutAt     *time.Time `bson:"logout_at,omitempty"` // nil while active
	EndReason    string     `bson:"end_reason,omitempty"`
	DurationSecs int64      `bson:"duration_secs,omitempty"`

	// TTL expiration
	ExpiresAt time.Time `bson:"expires_at"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Store manages session records in MongoDB. The cookie is authoritative for
// authentication; these records exist for tracking and logout.
type Store struct {
	c   *mongo.Collection
	now func() time.Time
}

// New creates a new session Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("sessions"), now: time.Now}
}

// Create creates a new session.
func (s *Store) Create(ctx context.Context, session Session) error {
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	now := s.now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	if session.LoginAt.IsZero() {
		session.LoginAt = now
	}
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = session.LoginAt.Add(DefaultTTL)
	}
	_, err := s.c.InsertOne(ctx, session)
	return err
}

// GetByToken returns the live session for token, or ErrNotFound when it
// has been closed or has expired.
func (s *Store) GetByToken(ctx context.Context, token string) (*Session, error) {
	var session Session
	err := s.c.FindOne(ctx, bson.M{
		"token":      token,
		"logout_at":  nil,
		"expires_at": bson.M{"$gt": s.now().UTC()},
	}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Close ends a session with reason and records its duration. The record is
// kept until the TTL index removes it.
func (s *Store) Close(ctx context.Context, token string, reason string) error {
	var session Session
	err := s.c.FindOne(ctx, bson.M{"token": token, "logout_at": nil}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := s.now().UTC()
	_, err = s.c.UpdateOne(ctx, bson.M{"_id": session.ID}, bson.M{
		"$set": bson.M{
			"logout_at":     now,
			"end_reason":    reason,
			"duration_secs": int64(now.Sub(session.LoginAt).Seconds()),
			"updated_at":    now,
		},
		"$unset": bson.M{"profile": ""},
	})
	return err
}

// ProfileFor returns the provider payload stored with the live session for
// token. A session without one yields empty Attributes.
func (s *Store) ProfileFor(ctx context.Context, token string) (models.Attributes, error) {
	session, err := s.GetByToken(ctx, token)
	if err != nil {
		return models.Attributes{}, err
	}
	if session.Profile == "" {
		return models.NewAttributes(), nil
	}
	return models.ParseAttributes([]byte(session.Profile))
}

// CloseExpired marks sessions past their expiry as ended. Returns the
// number of sessions closed.
func (s *Store) CloseExpired(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	res, err := s.c.UpdateMany(ctx,
		bson.M{
			"logout_at":  nil,
			"expires_at": bson.M{"$lte": now},
		},
		bson.M{
			"$set": bson.M{
				"logout_at":  now,
				"end_reason": EndReasonExpired,
				"updated_at": now,
			},
			"$unset": bson.M{"profile": ""},
		},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// CountActive counts sessions that are neither closed nor expired.
func (s *Store) CountActive(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{
		"logout_at":  nil,
		"expires_at": bson.M{"$gt": s.now().UTC()},
	})
}
