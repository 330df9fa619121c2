// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Collection names owned by this service.
const (
	Identities   = "identities"
	OAuthStates  = "oauth_states"
	Sessions     = "sessions"
	LoginRecords = "login_records"
	AuditLogs    = "audit_logs"
)

// Set is the desired index list for one collection.
type Set struct {
	Collection string
	Models     []mongo.IndexModel
}

// Sets returns every index this service relies on. The unique key on
// identities is what serializes concurrent first logins for one account.
func Sets() []Set {
	return []Set{
		{Identities, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "provider_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_identities_provider_pid"),
			},
			// Not unique: several identities may share an email, and
			// identities without one store null.
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetName("idx_identities_email"),
			},
			{
				Keys:    bson.D{{Key: "last_login_at", Value: -1}, {Key: "_id", Value: -1}},
				Options: options.Index().SetName("idx_identities_last_login"),
			},
		}},
		{OAuthStates, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "state", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_oauth_state"),
			},
			{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_oauth_expires_ttl"),
			},
		}},
		{Sessions, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "token", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("idx_session_token"),
			},
			{
				Keys:    bson.D{{Key: "identity_id", Value: 1}},
				Options: options.Index().SetName("idx_session_identity"),
			},
			{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_session_ttl"),
			},
		}},
		{LoginRecords, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "identity_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_logins_identity_created"),
			},
			{
				Keys:    bson.D{{Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_logins_created"),
			},
		}},
		{AuditLogs, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_audit_created"),
			},
			{
				Keys:    bson.D{{Key: "category", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_audit_category_created"),
			},
			{
				Keys:    bson.D{{Key: "identity_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_audit_identity_created"),
			},
		}},
	}
}

/*
EnsureAll is called at startup and is idempotent. Problems from every
collection are collected into one error so startup can fail fast with the
whole picture. Collections named in except are skipped.
*/
func EnsureAll(ctx context.Context, db *mongo.Database, logger *zap.Logger, except ...string) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var problems []string
	for _, set := range Sets() {
		if slices.Contains(except, set.Collection) {
			continue
		}
		r := reconciler{coll: db.Collection(set.Collection), logger: logger}
		if err := r.ensure(ctx, set.Models); err != nil {
			problems = append(problems, set.Collection+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Reconciliation                                                             */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func boolValue(p *bool) bool {
	return p != nil && *p
}

// isDuplicateKeyErr reports E11000 across driver error shapes and vendors.
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

// Mongo/DocDB return IndexOptionsConflict when the same keys exist under a
// different name or options.
func isOptionsConflictErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "IndexOptionsConflict")
}

type reconciler struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

func (r reconciler) existing(ctx context.Context) map[string]existingIndex {
	out := map[string]existingIndex{}
	cur, err := r.coll.Indexes().List(ctx)
	if err != nil {
		return out
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			r.logger.Warn("failed to decode existing index",
				zap.String("collection", r.coll.Name()),
				zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out
}

func (r reconciler) ensure(ctx context.Context, models []mongo.IndexModel) error {
	var errs []string
	have := r.existing(ctx)

	for _, m := range models {
		var name string
		var unique bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = boolValue(m.Options.Unique)
		}
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		fields := []zap.Field{
			zap.String("collection", r.coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", unique),
		}

		if ex, ok := have[sig]; ok {
			if boolValue(ex.Unique) == unique {
				r.logger.Debug("reusing existing index", append(fields, zap.String("existing_name", ex.Name))...)
				continue
			}
			// Uniqueness changed: drop and recreate.
			if _, err := r.coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				r.logger.Warn("drop existing index failed", append(fields, zap.Error(err))...)
				errs = append(errs, fmt.Sprintf("%s: drop failed: %v", name, err))
				continue
			}
			if _, err := r.coll.Indexes().CreateOne(ctx, m); err != nil {
				if isDuplicateKeyErr(err) && unique {
					errs = append(errs, fmt.Sprintf("%s: cannot create unique index (duplicates present)", name))
				} else {
					errs = append(errs, fmt.Sprintf("%s: %v", name, err))
				}
				continue
			}
			r.logger.Info("index dropped and recreated", append(fields, zap.Duration("took", time.Since(start)))...)
			continue
		}

		if _, err := r.coll.Indexes().CreateOne(ctx, m); err != nil {
			msg := "index ensure failed"
			if isOptionsConflictErr(err) {
				msg = "index ensure failed (options conflict)"
			}
			r.logger.Warn(msg, append(fields, zap.Error(err))...)
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		r.logger.Info("index ensured", append(fields, zap.Duration("took", time.Since(start)))...)
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
