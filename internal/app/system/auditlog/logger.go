// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"

	"github.com/dalemusser/stratasocial/internal/app/store/audit"
	"github.com/dalemusser/stratasocial/internal/app/system/network"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Destinations for a category.
const (
	All = "all" // MongoDB + zap
	DB  = "db"  // MongoDB only
	Log = "log" // zap only
	Off = "off"
)

// Config holds audit logging configuration.
type Config struct {
	// Auth covers login start, success, failure and logout.
	Auth string
	// Identity covers identity creation and resolved write conflicts.
	Identity string
}

// EventSink persists audit events. *audit.Store satisfies it.
type EventSink interface {
	Log(ctx context.Context, event audit.Event) error
}

// Logger writes audit events to MongoDB and/or zap per category.
type Logger struct {
	store  EventSink
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger. store may be nil, in which case "db"
// destinations are skipped.
func New(store EventSink, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}
	if event.IdentityID != nil {
		fields = append(fields, zap.String("identity_id", event.IdentityID.Hex()))
	}
	if event.Provider != "" {
		fields = append(fields, zap.String("provider", string(event.Provider)))
	}
	if event.AttemptID != "" {
		fields = append(fields, zap.String("attempt_id", event.AttemptID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

func (l *Logger) setting(category string) string {
	var s string
	switch category {
	case audit.CategoryAuth:
		s = l.config.Auth
	case audit.CategoryIdentity:
		s = l.config.Identity
	}
	if s == "" {
		return All
	}
	return s
}

// Log records an audit event based on configuration. A nil Logger is a
// no-op.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}
	setting := l.setting(event.Category)
	if setting == Off {
		return
	}
	if setting == All || setting == Log {
		l.logToZap(event)
	}
	if (setting == All || setting == DB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func fromRequest(r *http.Request, event audit.Event) audit.Event {
	if r != nil {
		event.IP = network.GetClientIP(r)
		event.UserAgent = r.UserAgent()
	}
	return event
}

// --- Authentication Events ---

// LoginStarted logs a redirect to the provider's consent page.
func (l *Logger) LoginStarted(ctx context.Context, r *http.Request, provider models.ProviderKind) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLoginStarted,
		Provider:  provider,
		Success:   true,
	}))
}

// LoginSuccess logs a resolved identity signing in.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, si models.StoredIdentity, attemptID string) {
	id := si.ID
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:   audit.CategoryAuth,
		EventType:  audit.EventLoginSuccess,
		IdentityID: &id,
		Provider:   si.Provider,
		AttemptID:  attemptID,
		Success:    true,
	}))
}

// LoginFailed logs a callback that ended in an error redirect. code is the
// value sent in the error query parameter.
func (l *Logger) LoginFailed(ctx context.Context, r *http.Request, provider models.ProviderKind, attemptID, code string) {
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     audit.EventLoginFailed,
		Provider:      provider,
		AttemptID:     attemptID,
		Success:       false,
		FailureReason: code,
	}))
}

// Logout logs a user signing out.
func (l *Logger) Logout(ctx context.Context, r *http.Request, identityID string) {
	event := audit.Event{
		Category:  audit.CategoryAuth,
		EventType: audit.EventLogout,
		Success:   true,
	}
	if oid, err := primitive.ObjectIDFromHex(identityID); err == nil {
		event.IdentityID = &oid
	}
	l.Log(ctx, fromRequest(r, event))
}

// --- Identity Events ---

// IdentityCreated logs the first login of a provider account.
func (l *Logger) IdentityCreated(ctx context.Context, r *http.Request, si models.StoredIdentity, attemptID string) {
	id := si.ID
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:   audit.CategoryIdentity,
		EventType:  audit.EventIdentityCreated,
		IdentityID: &id,
		Provider:   si.Provider,
		AttemptID:  attemptID,
		Success:    true,
		Details:    map[string]string{"provider_id": si.ProviderID},
	}))
}

// ConflictResolved logs a concurrent first login that was settled by the
// read-after-conflict retry.
func (l *Logger) ConflictResolved(ctx context.Context, r *http.Request, si models.StoredIdentity, attemptID string) {
	id := si.ID
	l.Log(ctx, fromRequest(r, audit.Event{
		Category:   audit.CategoryIdentity,
		EventType:  audit.EventConflictResolved,
		IdentityID: &id,
		Provider:   si.Provider,
		AttemptID:  attemptID,
		Success:    true,
	}))
}
