// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Job names.
const (
	JobOAuthStateCleanup = "oauth-state-cleanup"
	JobSessionCleanup    = "session-cleanup"
)

// StateSweeper removes expired OAuth state tokens. *oauthstate.Store
// satisfies it.
type StateSweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionSweeper closes expired tracked sessions. *sessions.Store
// satisfies it.
type SessionSweeper interface {
	CloseExpired(ctx context.Context) (int64, error)
}

// OAuthStateCleanupJob removes abandoned login attempts.
func OAuthStateCleanupJob(states StateSweeper, logger *zap.Logger) Job {
	return Job{
		Name:     JobOAuthStateCleanup,
		Interval: 15 * time.Minute,
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			n, err := states.DeleteExpired(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("cleaned up expired oauth states", zap.Int64("deleted", n))
			}
			return nil
		},
	}
}

// SessionCleanupJob marks expired tracked sessions as ended.
func SessionCleanupJob(sessions SessionSweeper, logger *zap.Logger) Job {
	return Job{
		Name:     JobSessionCleanup,
		Interval: time.Hour,
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			n, err := sessions.CloseExpired(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("closed expired sessions", zap.Int64("closed", n))
			}
			return nil
		},
	}
}
