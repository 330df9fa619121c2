// internal/app/system/validators/validators.go
package validators

// Terminology: Identity Identifiers
//   - IdentityID / identity_id: The ObjectID (_id) of a stored identity
//   - ProviderID / provider_id: The provider's stable subject id

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/stratasocial/internal/app/system/indexes"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// EnsureAll creates collections (if missing) and tries to attach JSON-Schema
// validators. On servers that don't support collMod/validators (e.g. some
// DocumentDB versions), we log and skip gracefully.
//
// withIdentities is false when identities live in SQLite; the Mongo
// identities collection is then left alone.
func EnsureAll(ctx context.Context, db *mongo.Database, withIdentities bool, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var problems []string

	ensure := func(coll string, schema bson.M) {
		if _, err := ensureCollection(ctx, db, coll, logger); err != nil {
			problems = append(problems, coll+": "+err.Error())
			return
		}
		if schema == nil {
			return
		}
		if err := setValidator(ctx, db, coll, schema); err != nil {
			if isNoSuchCommand(err) || isNotImplemented(err) {
				logger.Info("validator skipped (unsupported)", zap.String("collection", coll))
				return
			}
			problems = append(problems, coll+": "+err.Error())
			return
		}
		logger.Info("validator ensured", zap.String("collection", coll))
	}

	if withIdentities {
		ensure(indexes.Identities, identitiesSchema())
	}
	ensure(indexes.LoginRecords, loginRecordsSchema())
	ensure(indexes.OAuthStates, nil)
	ensure(indexes.Sessions, nil)
	ensure(indexes.AuditLogs, nil)

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* ---------------------- collection helpers & logging ---------------------- */

// collectionExists returns true when <name> already exists.
func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// ensureCollection idempotently makes sure <name> exists.
// Returns created==true only if we actually created it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string, logger *zap.Logger) (created bool, err error) {
	exists, listErr := collectionExists(ctx, db, name)
	if listErr == nil && exists {
		logger.Debug("collection exists", zap.String("collection", name))
		return false, nil
	}
	// If listing failed, fall back to create-and-handle-race.
	if err := db.CreateCollection(ctx, name); err != nil {
		if isNamespaceExistsErr(err) {
			return false, nil
		}
		logger.Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	logger.Info("created collection", zap.String("collection", name))
	return true, nil
}

/* ------------------------------ validators ------------------------------- */

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	var out bson.M
	return db.RunCommand(ctx, cmd).Decode(&out)
}

/* ------------------------- error helpers ------------------------- */

func isNamespaceExistsErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 48 || strings.Contains(strings.ToLower(ce.Message), "already exists")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "already exists") || strings.Contains(s, "namespace exists")
}

func isNoSuchCommand(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 59 || strings.Contains(strings.ToLower(ce.Message), "no such command")) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such command")
}

func isNotImplemented(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == 115 ||
		strings.Contains(strings.ToLower(ce.Message), "not implemented") ||
		strings.Contains(strings.ToLower(ce.Message), "not supported")) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not implemented") || strings.Contains(s, "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func providerEnum() bson.A {
	out := bson.A{}
	for _, v := range models.AllProviderValues() {
		out = append(out, v)
	}
	return out
}

func identitiesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"provider", "provider_id", "display_name", "created_at", "last_login_at"},
			"properties": bson.M{
				"provider":      bson.M{"enum": providerEnum()},
				"provider_id":   bson.M{"bsonType": "string", "minLength": 1},
				"display_name":  bson.M{"bsonType": "string"},
				"email":         bson.M{"bsonType": bson.A{"string", "null"}},
				"avatar_url":    bson.M{"bsonType": bson.A{"string", "null"}},
				"created_at":    bson.M{"bsonType": "date"},
				"last_login_at": bson.M{"bsonType": "date"},
			},
		},
	}
}

func loginRecordsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"identity_id", "provider", "created_at"},
			"properties": bson.M{
				"identity_id": bson.M{"bsonType": "objectId"},
				"provider":    bson.M{"enum": providerEnum()},
				"attempt_id":  bson.M{"bsonType": "string"},
				"first_login": bson.M{"bsonType": "bool"},
				"created_at":  bson.M{"bsonType": "date"},
			},
		},
	}
}
