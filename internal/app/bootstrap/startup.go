// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/stratasocial/internal/app/store/oauthstate"
	"github.com/dalemusser/stratasocial/internal/app/store/sessions"
	"github.com/dalemusser/stratasocial/internal/app/system/tasks"
	"github.com/dalemusser/stratasocial/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// It applies the configured operation timeouts and starts the background
// cleanup jobs. Returning a non-nil error aborts startup.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(appCfg.Timeouts())
	logger.Info("operation timeouts configured",
		zap.Duration("ping", timeouts.Ping()),
		zap.Duration("short", timeouts.Short()),
		zap.Duration("medium", timeouts.Medium()),
		zap.Duration("provider", timeouts.Provider()),
	)

	startTaskRunner(deps.MongoDatabase, appCfg, logger)
	return nil
}

// taskRunner is the global task runner instance, used for graceful shutdown.
var taskRunner *tasks.Runner

// startTaskRunner registers the cleanup jobs at the configured interval and
// starts them.
func startTaskRunner(db *mongo.Database, appCfg AppConfig, logger *zap.Logger) {
	taskRunner = tasks.New(logger)

	for _, job := range []tasks.Job{
		tasks.OAuthStateCleanupJob(oauthstate.New(db), logger),
		tasks.SessionCleanupJob(sessions.New(db), logger),
	} {
		if appCfg.CleanupInterval > 0 {
			job.Interval = appCfg.CleanupInterval
		}
		taskRunner.Register(job)
	}

	taskRunner.Start()
}
