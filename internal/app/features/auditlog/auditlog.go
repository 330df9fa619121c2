// internal/app/features/auditlog/auditlog.go
package auditlog

// Terminology: Identity Identifiers
//   - IdentityID / identity_id: The stored identity's ObjectID
//   - AttemptID / attempt_id: Per-callback correlation id

import (
	"context"
	"net/http"
	"strconv"
	"time"

	errorsfeature "github.com/dalemusser/stratasocial/internal/app/features/errors"
	"github.com/dalemusser/stratasocial/internal/app/store/audit"
	"github.com/dalemusser/stratasocial/internal/app/system/auth"
	"github.com/dalemusser/stratasocial/internal/app/system/jsonutil"
	"github.com/dalemusser/stratasocial/internal/app/system/timeouts"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

// EventSource reads stored audit events.
type EventSource interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
}

// Handler serves the signed-in identity's own audit trail.
type Handler struct {
	events EventSource
	errLog *errorsfeature.ErrorLogger
	logger *zap.Logger
}

// NewHandler creates a new audit log Handler.
func NewHandler(events EventSource, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errLog == nil {
		errLog = errorsfeature.NewErrorLogger(logger)
	}
	return &Handler{events: events, errLog: errLog, logger: logger}
}

// Routes returns a chi.Router for /activity.
func Routes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Get("/", h.List)
	return r
}

// Item is one audit event as returned to the identity it concerns. IP and
// user agent are left out.
type Item struct {
	At        time.Time           `json:"at"`
	Category  string              `json:"category"`
	EventType string              `json:"event_type"`
	Provider  models.ProviderKind `json:"provider,omitempty"`
	AttemptID string              `json:"attempt_id,omitempty"`
	Success   bool                `json:"success"`
	Reason    string              `json:"reason,omitempty"`
}

func itemFrom(e audit.Event) Item {
	return Item{
		At:        e.CreatedAt,
		Category:  e.Category,
		EventType: e.EventType,
		Provider:  e.Provider,
		AttemptID: e.AttemptID,
		Success:   e.Success,
		Reason:    e.FailureReason,
	}
}

var categories = map[string]bool{
	audit.CategoryAuth:     true,
	audit.CategoryIdentity: true,
}

// List returns recent events for the signed-in identity, newest first.
// Optional ?category=auth|identity and ?limit= (1..100).
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok || u.IdentityID().IsZero() {
		jsonutil.Unauthorized(w, "not_signed_in")
		return
	}
	id := u.IdentityID()

	q := r.URL.Query()
	filter := audit.QueryFilter{IdentityID: &id, Limit: defaultLimit}
	if c := q.Get("category"); c != "" {
		if !categories[c] {
			jsonutil.BadRequest(w, "invalid_category")
			return
		}
		filter.Category = c
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			jsonutil.BadRequest(w, "invalid_limit")
			return
		}
		filter.Limit = min(n, maxLimit)
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "list audit events")
	defer cancel()

	events, err := h.events.Query(ctx, filter)
	if err != nil {
		h.errLog.Log(r, "failed to query audit events", err)
		jsonutil.Unavailable(w, "store_unavailable")
		return
	}

	items := make([]Item, 0, len(events))
	for _, e := range events {
		items = append(items, itemFrom(e))
	}
	jsonutil.OK(w, map[string]any{"events": items})
}
