// internal/app/features/profile/profile.go
package profile

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	errorsfeature "github.com/dalemusser/stratasocial/internal/app/features/errors"
	"github.com/dalemusser/stratasocial/internal/app/store/sessions"
	"github.com/dalemusser/stratasocial/internal/app/system/auth"
	"github.com/dalemusser/stratasocial/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratasocial/internal/app/system/jsonutil"
	"github.com/dalemusser/stratasocial/internal/app/system/timeouts"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	defaultLoginsLimit = 20
	maxLoginsLimit     = 100
)

// IdentityGetter loads a stored identity.
type IdentityGetter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.StoredIdentity, error)
}

// LoginHistory reads an identity's login records.
type LoginHistory interface {
	GetByIdentity(ctx context.Context, identityID primitive.ObjectID, limit int64) ([]models.LoginRecord, error)
}

// SessionProfiles returns the provider payload kept with a live session.
type SessionProfiles interface {
	ProfileFor(ctx context.Context, token string) (models.Attributes, error)
}

// View is the /me body. These are the only identity fields shown to the
// signed-in user; provider ids and timestamps stay server-side.
type View struct {
	DisplayName   string            `json:"display_name"`
	Email         *string           `json:"email"`
	AvatarURL     *string           `json:"avatar_url"`
	RawAttributes models.Attributes `json:"raw_attributes"`
}

// Handler serves the signed-in identity's own data.
type Handler struct {
	identities IdentityGetter
	logins     LoginHistory
	profiles   SessionProfiles
	errLog     *errorsfeature.ErrorLogger
	logger     *zap.Logger
}

func NewHandler(identities IdentityGetter, logins LoginHistory, profiles SessionProfiles, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errLog == nil {
		errLog = errorsfeature.NewErrorLogger(logger)
	}
	return &Handler{identities: identities, logins: logins, profiles: profiles, errLog: errLog, logger: logger}
}

// Routes returns a chi.Router with profile routes mounted.
func Routes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Get("/", h.ShowProfile)
	r.Get("/logins", h.ListLogins)
	return r
}

func (h *Handler) currentIdentityID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		jsonutil.Unauthorized(w, "not_signed_in")
		return primitive.NilObjectID, false
	}
	id := u.IdentityID()
	if id.IsZero() {
		jsonutil.Unauthorized(w, "invalid_session")
		return primitive.NilObjectID, false
	}
	return id, true
}

// ShowProfile returns the view-safe identity and the sanitized provider
// payload of the current session.
func (h *Handler) ShowProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.currentIdentityID(w, r)
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "load profile")
	defer cancel()

	si, err := h.identities.GetByID(ctx, id)
	if err != nil {
		h.writeStoreError(w, r, "failed to load identity", err)
		return
	}

	raw := models.NewAttributes()
	if u, ok := auth.CurrentUser(r); ok && h.profiles != nil && u.SessionToken() != "" {
		attrs, err := h.profiles.ProfileFor(ctx, u.SessionToken())
		switch {
		case errors.Is(err, sessions.ErrNotFound):
			h.logger.Debug("no tracked session for profile", zap.String("identity_id", id.Hex()))
		case err != nil:
			h.logger.Warn("failed to load session profile", zap.String("identity_id", id.Hex()), zap.Error(err))
		default:
			raw = attrs
		}
	}

	jsonutil.OK(w, NewView(*si, raw))
}

// NewView builds the view-safe projection of si.
func NewView(si models.StoredIdentity, raw models.Attributes) View {
	return View{
		DisplayName:   htmlsanitize.Text(si.DisplayName),
		Email:         si.Email,
		AvatarURL:     si.AvatarURL,
		RawAttributes: htmlsanitize.Attributes(raw),
	}
}

// ListLogins returns the identity's recent logins, newest first.
// ?limit= is clamped to 1..100.
func (h *Handler) ListLogins(w http.ResponseWriter, r *http.Request) {
	id, ok := h.currentIdentityID(w, r)
	if !ok {
		return
	}
	limit := int64(defaultLoginsLimit)
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			jsonutil.BadRequest(w, "invalid_limit")
			return
		}
		limit = min(n, maxLoginsLimit)
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "list logins")
	defer cancel()

	records, err := h.logins.GetByIdentity(ctx, id, limit)
	if err != nil {
		h.writeStoreError(w, r, "failed to list logins", err)
		return
	}
	if records == nil {
		records = []models.LoginRecord{}
	}
	jsonutil.OK(w, map[string]any{"logins": records})
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, models.ErrIdentityNotFound):
		jsonutil.NotFound(w, "identity_not_found")
	case errors.Is(err, models.ErrPersistenceUnavailable):
		h.errLog.Log(r, msg, err)
		jsonutil.Unavailable(w, "store_unavailable")
	default:
		h.errLog.Log(r, msg, err)
		jsonutil.InternalError(w, "internal_error")
	}
}
