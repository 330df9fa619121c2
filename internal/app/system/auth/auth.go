package auth

// Terminology: Identity Identifiers
//   - IdentityID / identity_id: The ObjectID of the stored identity the session belongs to
//   - Provider: The social provider the identity came from (github, google, facebook)

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/stratasocial/internal/domain/models"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Cookie keys                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	isAuthKey       = "is_authenticated"
	identityIDKey   = "identity_id"
	providerKey     = "provider"
	displayNameKey  = "display_name"
	sessionTokenKey = "session_token"
)

// DefaultSessionName is the cookie name used when none is configured.
const DefaultSessionName = "stratasocial-session"

/*─────────────────────────────────────────────────────────────────────────────*
| SessionManager                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager owns the signed session cookie and the middleware that
// turns it into a request-scoped SessionUser.
type SessionManager struct {
	store   *sessions.CookieStore
	logger  *zap.Logger
	name    string
	fetcher IdentityFetcher
}

// SessionConfigError is returned when session configuration is invalid.
type SessionConfigError struct {
	Message string
}

func (e *SessionConfigError) Error() string {
	return e.Message
}

// NewSessionManager builds a SessionManager.
//
// sessionKey signs the cookie and must be at least 32 chars (and not a
// placeholder) when secure is true. An empty name uses DefaultSessionName.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, &SessionConfigError{Message: "session key is empty; provide ≥32 random chars"}
	}

	weak := len(sessionKey) < 32 || isDefaultKey(sessionKey)
	switch {
	case weak && secure:
		return nil, &SessionConfigError{
			Message: "session key is too weak for production; provide ≥32 random chars (not the default dev key)",
		}
	case weak:
		logger.Warn("session key is weak; 32+ random chars required in production",
			zap.Int("length", len(sessionKey)),
			zap.Bool("is_default", isDefaultKey(sessionKey)))
	}

	if name == "" {
		name = DefaultSessionName
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	// Lax lets the cookie ride along on the top-level redirect back from the
	// provider's consent screen.
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	logger.Info("session manager initialized",
		zap.Bool("secure", secure),
		zap.String("name", name),
		zap.String("domain", domain))

	return &SessionManager{
		store:  store,
		logger: logger,
		name:   name,
	}, nil
}

// SessionName returns the configured session cookie name.
func (sm *SessionManager) SessionName() string {
	return sm.name
}

// Store returns the underlying session store.
func (sm *SessionManager) Store() *sessions.CookieStore {
	return sm.store
}

// GetSession retrieves the session for the request.
func (sm *SessionManager) GetSession(r *http.Request) (*sessions.Session, error) {
	return sm.store.Get(r, sm.name)
}

// SetIdentityFetcher sets the fetcher LoadSessionUser uses to reload the
// identity on every request. Call after the identity store is connected.
func (sm *SessionManager) SetIdentityFetcher(f IdentityFetcher) {
	sm.fetcher = f
}

/*─────────────────────────────────────────────────────────────────────────────*
| Session principal                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

// IdentityFetcher reloads a stored identity for the session principal.
// Implementations return nil when the identity no longer exists.
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context, identityID string) *SessionUser
}

// SessionUser is the signed-in identity attached to the request context.
// Only view-safe fields are carried.
type SessionUser struct {
	ID        string
	Provider  models.ProviderKind
	Name      string
	Email     string
	AvatarURL string
	Token     string // tracked session token
}

// IdentityID returns the identity's ObjectID, or the zero ObjectID when the
// stored hex is invalid.
func (u *SessionUser) IdentityID() primitive.ObjectID {
	oid, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return primitive.NilObjectID
	}
	return oid
}

// SessionToken returns the tracked session token for this request.
func (u *SessionUser) SessionToken() string {
	return u.Token
}

// SessionUserFromIdentity builds the view-safe principal for si.
func SessionUserFromIdentity(si models.StoredIdentity) *SessionUser {
	return &SessionUser{
		ID:        si.ID.Hex(),
		Provider:  si.Provider,
		Name:      si.DisplayName,
		Email:     si.EmailValue(),
		AvatarURL: si.AvatarValue(),
	}
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the signed-in identity and whether there is one.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// WithTestUser injects a SessionUser into the request context for testing.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Middleware                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// LoadSessionUser injects the signed-in identity into the request context.
// With a fetcher configured the identity is reloaded on each request, so a
// deleted identity ends the session at once.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.store.Get(r, sm.name)
		if err != nil {
			sm.logSessionError(r, err)
		}

		if isAuth, _ := sess.Values[isAuthKey].(bool); !isAuth {
			next.ServeHTTP(w, r)
			return
		}

		identityID := getString(sess, identityIDKey)
		token := getString(sess, sessionTokenKey)
		if identityID == "" {
			next.ServeHTTP(w, r)
			return
		}

		if sm.fetcher == nil {
			r = withUser(r, &SessionUser{
				ID:       identityID,
				Provider: models.ProviderKind(getString(sess, providerKey)),
				Name:     getString(sess, displayNameKey),
				Token:    token,
			})
			next.ServeHTTP(w, r)
			return
		}

		u := sm.fetcher.FetchIdentity(r.Context(), identityID)
		if u == nil {
			sm.logger.Info("session invalidated: identity not found",
				zap.String("identity_id", identityID),
				zap.String("path", r.URL.Path))
			sess.Values[isAuthKey] = false
			delete(sess.Values, identityIDKey)
			_ = sess.Save(r, w)
			next.ServeHTTP(w, r)
			return
		}
		u.Token = token
		next.ServeHTTP(w, withUser(r, u))
	})
}

func (sm *SessionManager) logSessionError(r *http.Request, err error) {
	errType, category := classifySessionError(err)
	fields := []zap.Field{zap.String("category", category), zap.String("path", r.URL.Path)}
	switch errType {
	case sessionErrExpired:
		sm.logger.Debug("session expired, starting fresh session", fields...)
	case sessionErrTampered:
		sm.logger.Warn("session MAC validation failed (possible tampering)",
			append(fields, zap.String("remote_addr", r.RemoteAddr), zap.String("user_agent", r.UserAgent()))...)
	case sessionErrCorrupted:
		sm.logger.Info("session decode failed, starting fresh session", fields...)
	case sessionErrBackend:
		sm.logger.Error("session store error, starting fresh session", append(fields, zap.Error(err))...)
	default:
		sm.logger.Warn("session error, starting fresh session", append(fields, zap.Error(err))...)
	}
}

// RequireSignedIn rejects requests without a signed-in identity. Browsers
// are redirected to /login; other callers get 401.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}

		ret := url.QueryEscape(currentURI(r))

		if r.Header.Get("HX-Request") == "true" {
			w.Header().Set("HX-Redirect", "/login?return="+ret)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if wantsHTML(r) {
			http.Redirect(w, r, "/login?return="+ret, http.StatusSeeOther)
			return
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

// RequireAuth is an alias for RequireSignedIn.
func (sm *SessionManager) RequireAuth(next http.Handler) http.Handler {
	return sm.RequireSignedIn(next)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Session lifecycle                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

// CreateSession signs in the given identity. An empty token is generated.
func (sm *SessionManager) CreateSession(w http.ResponseWriter, r *http.Request, si models.StoredIdentity, token string) error {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		sess, _ = sm.store.New(r, sm.name)
	}

	if token == "" {
		if token, err = GenerateSessionToken(); err != nil {
			return err
		}
	}

	sess.Values[isAuthKey] = true
	sess.Values[identityIDKey] = si.ID.Hex()
	sess.Values[providerKey] = string(si.Provider)
	sess.Values[displayNameKey] = si.DisplayName
	sess.Values[sessionTokenKey] = token

	return sess.Save(r, w)
}

// GetSessionToken returns the tracked session token from the cookie.
func (sm *SessionManager) GetSessionToken(r *http.Request) string {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		return ""
	}
	return getString(sess, sessionTokenKey)
}

// GenerateSessionToken returns a random URL-safe token.
func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// DestroySession clears the identity from the cookie and expires it.
func (sm *SessionManager) DestroySession(w http.ResponseWriter, r *http.Request) {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		return
	}

	sess.Values[isAuthKey] = false
	delete(sess.Values, identityIDKey)
	delete(sess.Values, providerKey)
	delete(sess.Values, displayNameKey)
	delete(sess.Values, sessionTokenKey)

	sess.Options.MaxAge = -1
	_ = sess.Save(r, w)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

type sessionErrorType int

const (
	sessionErrUnknown   sessionErrorType = iota
	sessionErrExpired                    // timestamp expired - normal
	sessionErrTampered                   // MAC invalid - potential attack
	sessionErrCorrupted                  // decode/decrypt failed - corruption or key rotation
	sessionErrBackend                    // store/backend failure
)

// classifySessionError categorizes a cookie error for logging.
func classifySessionError(err error) (sessionErrorType, string) {
	if err == nil {
		return sessionErrUnknown, "none"
	}

	scErr, ok := err.(securecookie.Error)
	if !ok || !scErr.IsDecode() {
		return sessionErrBackend, "backend"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "expired timestamp"):
		return sessionErrExpired, "expired"
	case strings.Contains(msg, "mac") || strings.Contains(msg, "hash"):
		return sessionErrTampered, "mac_invalid"
	case strings.Contains(msg, "decrypt"):
		return sessionErrCorrupted, "decrypt_failed"
	case strings.Contains(msg, "base64") || strings.Contains(msg, "decode"):
		return sessionErrCorrupted, "decode_failed"
	default:
		return sessionErrCorrupted, "decode_other"
	}
}

func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

func wantsHTML(r *http.Request) bool {
	if r.Header.Get("HX-Request") == "true" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func currentURI(r *http.Request) string {
	u := *r.URL
	return u.RequestURI()
}

// isDefaultKey reports whether key looks like a placeholder.
func isDefaultKey(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range []string{
		"dev-only", "change-me", "placeholder", "default",
		"example", "insecure", "test-key", "secret123", "password",
	} {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
