// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	identitystore "github.com/dalemusser/stratasocial/internal/app/store/identities"
	"github.com/dalemusser/stratasocial/internal/app/store/sqlitestore"
	"github.com/dalemusser/stratasocial/internal/app/system/indexes"
	"github.com/dalemusser/stratasocial/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB and, when configured, opens the SQLite
// identity store.
//
// WAFFLE calls this after configuration is loaded but before EnsureSchema and
// Startup. The SQLite file is created and migrated on open.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	poolCfg := wafflemongo.DefaultPoolConfig()
	if appCfg.MongoMaxPoolSize > 0 {
		poolCfg.MaxPoolSize = appCfg.MongoMaxPoolSize
	}
	if appCfg.MongoMinPoolSize > 0 {
		poolCfg.MinPoolSize = appCfg.MongoMinPoolSize
	}

	client, err := wafflemongo.ConnectWithPool(ctx, appCfg.MongoURI, appCfg.MongoDatabase, poolCfg)
	if err != nil {
		return DBDeps{}, err
	}

	db := client.Database(appCfg.MongoDatabase)

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", poolCfg.MaxPoolSize),
		zap.Uint64("min_pool_size", poolCfg.MinPoolSize),
	)

	deps := DBDeps{
		MongoClient:   client,
		MongoDatabase: db,
	}

	switch appCfg.IdentityStore {
	case IdentityStoreSQLite:
		sq, err := sqlitestore.Open(ctx, appCfg.SQLitePath)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return DBDeps{}, fmt.Errorf("open sqlite identity store: %w", err)
		}
		deps.SQLite = sq
		deps.Identities = sq
		logger.Info("opened SQLite identity store", zap.String("path", appCfg.SQLitePath))
	default:
		deps.Identities = identitystore.New(db)
		logger.Info("using MongoDB identity store")
	}

	return deps, nil
}

// EnsureSchema creates Mongo collections, validators and indexes. SQLite
// migrations already ran in ConnectDB.
//
// The context has a timeout based on coreCfg.IndexBootTimeout.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase
	mongoIdentities := deps.SQLite == nil

	logger.Info("ensuring collections and validators")
	if err := validators.EnsureAll(ctx, db, mongoIdentities, logger); err != nil {
		logger.Error("failed to ensure validators", zap.Error(err))
		return err
	}

	var skip []string
	if !mongoIdentities {
		skip = append(skip, indexes.Identities)
	}
	logger.Info("ensuring database indexes")
	if err := indexes.EnsureAll(ctx, db, logger, skip...); err != nil {
		logger.Error("failed to ensure indexes", zap.Error(err))
		return err
	}

	logger.Info("database schema ensured successfully")
	return nil
}
