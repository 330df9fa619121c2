// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/stratasocial/internal/app/store/sqlitestore"
	"github.com/dalemusser/stratasocial/internal/app/system/resolver"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// IdentityStore is what the app needs from an identity backend. The Mongo
// identitystore and the SQLite store both satisfy it.
type IdentityStore interface {
	resolver.Store
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.StoredIdentity, error)
	Count(ctx context.Context) (int64, error)
	CountByProvider(ctx context.Context) (map[models.ProviderKind]int64, error)
}

// DBDeps holds database and backend dependencies for this WAFFLE app.
//
// This struct is created in ConnectDB and passed to subsequent lifecycle
// hooks: EnsureSchema, Startup, BuildHandler, and Shutdown. The Shutdown
// hook closes these connections when the application terminates.
type DBDeps struct {
	// MongoDB client and database
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// SQLite is set only when identity_store is "sqlite".
	SQLite *sqlitestore.Store

	// Identities is the selected identity backend.
	Identities IdentityStore
}
