// internal/app/features/logout/logout.go
package logout

import (
	"context"
	"errors"
	"net/http"

	"github.com/dalemusser/stratasocial/internal/app/store/sessions"
	"github.com/dalemusser/stratasocial/internal/app/system/auditlog"
	"github.com/dalemusser/stratasocial/internal/app/system/auth"
	"github.com/dalemusser/stratasocial/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SessionCloser ends a tracked session.
type SessionCloser interface {
	Close(ctx context.Context, token, reason string) error
}

// Handler provides logout handlers.
type Handler struct {
	sessionMgr  *auth.SessionManager
	auditLogger *auditlog.Logger
	sessions    SessionCloser
	logger      *zap.Logger
}

// NewHandler creates a new logout Handler. auditLogger and sessions may be nil.
func NewHandler(
	sessionMgr *auth.SessionManager,
	auditLogger *auditlog.Logger,
	sessions SessionCloser,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessionMgr:  sessionMgr,
		auditLogger: auditLogger,
		sessions:    sessions,
		logger:      logger,
	}
}

// Routes returns a chi.Router with logout routes mounted.
func Routes(h *Handler, sessionMgr *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sessionMgr.RequireSignedIn)
	r.Post("/", h.handleLogout)
	r.Get("/", h.handleLogout) // Allow GET for simple logout links
	return r
}

// handleLogout terminates the session.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := auth.CurrentUser(r); ok {
		h.auditLogger.Logout(r.Context(), r, user.ID)

		// The tracked record is kept for audit; closing it stamps logout_at
		// and the session duration.
		if token := user.SessionToken(); token != "" && h.sessions != nil {
			ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "close session")
			err := h.sessions.Close(ctx, token, sessions.EndReasonLogout)
			cancel()
			switch {
			case errors.Is(err, sessions.ErrNotFound):
				h.logger.Debug("no tracked session to close", zap.String("identity_id", user.ID))
			case err != nil:
				h.logger.Warn("failed to close session in store", zap.Error(err))
			}
		}
	}

	h.sessionMgr.DestroySession(w, r)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}
