// internal/domain/models/loginhistory.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LoginRecord captures one successful identity resolution.
// CreatedAt is indexed for recent-activity views.
type LoginRecord struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	IdentityID primitive.ObjectID `bson:"identity_id" json:"identity_id"`
	Provider   ProviderKind       `bson:"provider" json:"provider"`
	AttemptID  string             `bson:"attempt_id" json:"attempt_id"` // correlates with log lines
	FirstLogin bool               `bson:"first_login" json:"first_login"`
	IP         string             `bson:"ip" json:"ip"`
	UserAgent  string             `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}
