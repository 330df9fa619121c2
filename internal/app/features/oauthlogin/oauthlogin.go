// internal/app/features/oauthlogin/oauthlogin.go
package oauthlogin

// Terminology: Identity Identifiers
//   - IdentityID / identity_id: The stored identity's ObjectID
//   - ProviderID / provider_id: The provider's stable subject id
//   - AttemptID / attempt_id: A uuid minted per callback; ties log lines,
//     the login record and audit events together

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	errorsfeature "github.com/dalemusser/stratasocial/internal/app/features/errors"
	"github.com/dalemusser/stratasocial/internal/app/store/oauthstate"
	"github.com/dalemusser/stratasocial/internal/app/store/sessions"
	"github.com/dalemusser/stratasocial/internal/app/system/auditlog"
	"github.com/dalemusser/stratasocial/internal/app/system/auth"
	"github.com/dalemusser/stratasocial/internal/app/system/metrics"
	"github.com/dalemusser/stratasocial/internal/app/system/network"
	"github.com/dalemusser/stratasocial/internal/app/system/normalize"
	"github.com/dalemusser/stratasocial/internal/app/system/oauthproviders"
	"github.com/dalemusser/stratasocial/internal/app/system/resolver"
	"github.com/dalemusser/stratasocial/internal/app/system/timeouts"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Callback error codes sent to /login?error=.
const (
	CodeInvalidState        = "invalid_state"
	CodeTokenExchangeFailed = "token_exchange_failed"
	CodeUserInfoFailed      = "userinfo_failed"
	CodeUnsupportedProvider = "unsupported_provider"
	CodeMalformedProfile    = "malformed_profile"
	CodeStoreUnavailable    = "store_unavailable"
	CodeIdentityError       = "identity_error"
	CodeSessionError        = "session_error"
	CodeOAuthError          = "oauth_error"
)

// DefaultSuccessPath is where a completed login lands.
const DefaultSuccessPath = "/me"

// StateStore issues and consumes provider-bound state tokens.
type StateStore interface {
	Create(ctx context.Context, state string, provider models.ProviderKind) error
	Verify(ctx context.Context, state string, provider models.ProviderKind) bool
}

// IdentityNormalizer maps a user-info payload to a canonical identity.
type IdentityNormalizer interface {
	Identity(provider models.ProviderKind, payload models.Attributes) (models.CanonicalIdentity, error)
}

// IdentityResolver finds or creates the stored identity.
type IdentityResolver interface {
	ResolveOutcome(ctx context.Context, ci models.CanonicalIdentity) (resolver.Resolution, error)
}

// LoginRecorder writes one row per successful login.
type LoginRecorder interface {
	CreateFrom(ctx context.Context, r *http.Request, si models.StoredIdentity, attemptID string, firstLogin bool) error
}

// SessionTracker stores the server-side session record.
type SessionTracker interface {
	Create(ctx context.Context, session sessions.Session) error
}

// Deps are the collaborators of Handler. Logins, Sessions, Audit and
// Metrics are optional.
type Deps struct {
	Providers  *oauthproviders.Registry
	States     StateStore
	Normalizer IdentityNormalizer
	Resolver   IdentityResolver
	SessionMgr *auth.SessionManager
	Logins     LoginRecorder
	Sessions   SessionTracker
	Audit      *auditlog.Logger
	Metrics    *metrics.Recorder
	ErrLog     *errorsfeature.ErrorLogger
	Logger     *zap.Logger

	SuccessPath string
	SessionTTL  time.Duration
}

// Handler runs the authorization-code flow for every enabled provider.
type Handler struct {
	d Deps
}

// NewHandler creates a Handler. Missing optional deps are defaulted.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.ErrLog == nil {
		d.ErrLog = errorsfeature.NewErrorLogger(d.Logger)
	}
	if d.Normalizer == nil {
		d.Normalizer = normalize.Normalizer{}
	}
	if d.SuccessPath == "" {
		d.SuccessPath = DefaultSuccessPath
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = sessions.DefaultTTL
	}
	return &Handler{d: d}
}

// Routes returns a chi.Router for /auth.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/{provider}", h.start)
	r.Get("/{provider}/callback", h.callback)
	return r
}

// provider resolves the {provider} URL param to an enabled provider.
func (h *Handler) provider(r *http.Request) (models.ProviderKind, *oauthproviders.Provider, bool) {
	kind, err := models.ParseProvider(normalize.ProviderParam(chi.URLParam(r, "provider")))
	if err != nil {
		return kind, nil, false
	}
	p, ok := h.d.Providers.Get(kind)
	return kind, p, ok
}

// start stores a fresh state bound to the provider and redirects to the
// provider's consent page.
func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	kind, p, ok := h.provider(r)
	if !ok {
		h.fail(w, r, kind, "", CodeUnsupportedProvider)
		return
	}

	state, err := oauthstate.Generate()
	if err != nil {
		h.d.ErrLog.Log(r, "failed to generate oauth state", err)
		h.fail(w, r, kind, "", CodeOAuthError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()
	if err := h.d.States.Create(ctx, state, kind); err != nil {
		h.d.ErrLog.Log(r, "failed to store oauth state", err)
		h.fail(w, r, kind, "", CodeOAuthError)
		return
	}

	h.d.Audit.LoginStarted(r.Context(), r, kind)
	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

// callback completes the flow: state, code exchange, user-info, normalize,
// resolve, record, session.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	attemptID := uuid.NewString()
	q := r.URL.Query()

	kind, p, ok := h.provider(r)
	if !ok {
		h.fail(w, r, kind, attemptID, CodeUnsupportedProvider)
		return
	}

	// State is consumed even when the provider reports an error, so a
	// denied consent cannot be replayed.
	stateCtx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	valid := h.d.States.Verify(stateCtx, q.Get("state"), kind)
	cancel()
	if !valid {
		h.d.ErrLog.Warn(r, "invalid oauth state", zap.String("provider", string(kind)), zap.String("attempt_id", attemptID))
		h.fail(w, r, kind, attemptID, CodeInvalidState)
		return
	}

	if perr := q.Get("error"); perr != "" {
		h.d.ErrLog.Warn(r, "oauth error from provider",
			zap.String("provider", string(kind)),
			zap.String("error", perr),
			zap.String("error_description", q.Get("error_description")))
		h.fail(w, r, kind, attemptID, ProviderErrorCode(perr))
		return
	}

	provCtx, cancel := context.WithTimeout(r.Context(), timeouts.Provider())
	defer cancel()

	token, err := p.Exchange(provCtx, q.Get("code"))
	if err != nil {
		h.d.ErrLog.LogWithFields(r, "failed to exchange code", err, zap.String("attempt_id", attemptID))
		h.fail(w, r, kind, attemptID, CodeTokenExchangeFailed)
		return
	}

	payload, err := p.FetchAttributes(provCtx, token)
	if err != nil {
		h.d.ErrLog.LogWithFields(r, "failed to get user info", err, zap.String("attempt_id", attemptID))
		h.fail(w, r, kind, attemptID, CodeUserInfoFailed)
		return
	}

	ci, err := h.d.Normalizer.Identity(kind, payload)
	if err != nil {
		reason := "malformed"
		var upe *models.UnsupportedProviderError
		if errors.As(err, &upe) {
			reason = "unsupported"
		}
		h.d.Metrics.NormalizeFailure(string(kind), reason)
		h.d.ErrLog.Warn(r, "provider profile rejected",
			zap.String("provider", string(kind)),
			zap.String("attempt_id", attemptID),
			zap.Error(err))
		h.fail(w, r, kind, attemptID, Code(err))
		return
	}

	storeCtx, cancelStore := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancelStore()

	res, err := h.d.Resolver.ResolveOutcome(storeCtx, ci)
	if err != nil {
		h.d.ErrLog.LogWithFields(r, "failed to resolve identity", err,
			zap.String("provider", string(kind)),
			zap.String("attempt_id", attemptID))
		h.fail(w, r, kind, attemptID, Code(err))
		return
	}
	si := res.Identity

	if h.d.Logins != nil {
		if err := h.d.Logins.CreateFrom(storeCtx, r, si, attemptID, res.Created); err != nil {
			h.d.Logger.Warn("failed to record login", zap.String("attempt_id", attemptID), zap.Error(err))
		}
	}
	if res.Created {
		h.d.Audit.IdentityCreated(r.Context(), r, si, attemptID)
	}
	if res.Retried {
		h.d.Audit.ConflictResolved(r.Context(), r, si, attemptID)
	}

	if err := h.createTrackedSession(storeCtx, w, r, si, ci.RawAttributes); err != nil {
		h.d.ErrLog.LogWithFields(r, "failed to create session", err, zap.String("attempt_id", attemptID))
		h.fail(w, r, kind, attemptID, CodeSessionError)
		return
	}

	h.d.Audit.LoginSuccess(r.Context(), r, si, attemptID)
	h.d.Logger.Info("login succeeded",
		zap.String("provider", string(kind)),
		zap.String("identity_id", si.ID.Hex()),
		zap.String("attempt_id", attemptID),
		zap.Bool("created", res.Created))

	http.Redirect(w, r, h.d.SuccessPath, http.StatusSeeOther)
}

// createTrackedSession signs the cookie and stores the matching session
// record with the provider payload for display. Tracking is best effort.
func (h *Handler) createTrackedSession(ctx context.Context, w http.ResponseWriter, r *http.Request, si models.StoredIdentity, raw models.Attributes) error {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return err
	}
	if err := h.d.SessionMgr.CreateSession(w, r, si, token); err != nil {
		return err
	}
	if h.d.Sessions == nil {
		return nil
	}

	var profile string
	if raw.Len() > 0 {
		b, err := raw.MarshalJSON()
		if err != nil {
			h.d.Logger.Warn("failed to encode provider payload", zap.Error(err))
		} else {
			profile = string(b)
		}
	}

	now := time.Now().UTC()
	err = h.d.Sessions.Create(ctx, sessions.Session{
		Token:      token,
		IdentityID: si.ID,
		Provider:   si.Provider,
		IPAddress:  network.GetClientIP(r),
		UserAgent:  r.UserAgent(),
		Profile:    profile,
		LoginAt:    now,
		ExpiresAt:  now.Add(h.d.SessionTTL),
	})
	if err != nil {
		h.d.Logger.Warn("failed to track session", zap.Error(err))
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, kind models.ProviderKind, attemptID, code string) {
	label := string(kind)
	if !kind.IsValid() {
		label = "unknown"
	}
	h.d.Metrics.CallbackError(label, code)
	h.d.Audit.LoginFailed(r.Context(), r, kind, attemptID, code)
	http.Redirect(w, r, "/login?error="+url.QueryEscape(code), http.StatusSeeOther)
}

// Code maps a normalize or resolve error to its callback error code.
func Code(err error) string {
	var upe *models.UnsupportedProviderError
	var mpe *models.MalformedPayloadError
	switch {
	case errors.As(err, &upe):
		return CodeUnsupportedProvider
	case errors.As(err, &mpe):
		return CodeMalformedProfile
	case errors.Is(err, models.ErrPersistenceUnavailable):
		return CodeStoreUnavailable
	default:
		return CodeIdentityError
	}
}

// ProviderErrorCode reduces the provider's error parameter to a safe code:
// lowercase letters, digits and underscores, at most 64 bytes.
func ProviderErrorCode(s string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(s) {
		if b.Len() >= 64 {
			break
		}
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return CodeOAuthError
	}
	return b.String()
}
