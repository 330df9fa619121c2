// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	auditlogfeature "github.com/dalemusser/stratasocial/internal/app/features/auditlog"
	errorsfeature "github.com/dalemusser/stratasocial/internal/app/features/errors"
	healthfeature "github.com/dalemusser/stratasocial/internal/app/features/health"
	loginfeature "github.com/dalemusser/stratasocial/internal/app/features/login"
	logoutfeature "github.com/dalemusser/stratasocial/internal/app/features/logout"
	"github.com/dalemusser/stratasocial/internal/app/features/oauthlogin"
	profilefeature "github.com/dalemusser/stratasocial/internal/app/features/profile"
	statsfeature "github.com/dalemusser/stratasocial/internal/app/features/stats"
	"github.com/dalemusser/stratasocial/internal/app/store/audit"
	identitystore "github.com/dalemusser/stratasocial/internal/app/store/identities"
	loginstore "github.com/dalemusser/stratasocial/internal/app/store/logins"
	"github.com/dalemusser/stratasocial/internal/app/store/oauthstate"
	"github.com/dalemusser/stratasocial/internal/app/store/sessions"
	"github.com/dalemusser/stratasocial/internal/app/system/auditlog"
	"github.com/dalemusser/stratasocial/internal/app/system/auth"
	"github.com/dalemusser/stratasocial/internal/app/system/metrics"
	"github.com/dalemusser/stratasocial/internal/app/system/normalize"
	"github.com/dalemusser/stratasocial/internal/app/system/oauthproviders"
	"github.com/dalemusser/stratasocial/internal/app/system/resolver"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. The returned router serves:
//   - /login: provider chooser and login error page
//   - /auth/{provider} and /auth/{provider}/callback: the OAuth flow
//   - /me: the signed-in identity and its login history
//   - /activity: the signed-in identity's audit trail
//   - /stats/identities: identity and login counts
//   - /logout
//   - /health, /ready, /readyz, /livez and optionally /metrics
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// LoadSessionUser re-reads the identity on each request so a deleted
	// identity signs the browser out.
	sessionMgr.SetIdentityFetcher(identitystore.NewFetcher(deps.Identities, logger))

	errLog := errorsfeature.NewErrorLogger(logger)

	auditStore := audit.New(deps.MongoDatabase)
	auditLogger := auditlog.New(auditStore, logger, appCfg.AuditConfig())

	sessionsStore := sessions.New(deps.MongoDatabase)
	loginStore := loginstore.New(deps.MongoDatabase)

	var rec *metrics.Recorder
	if appCfg.MetricsEnabled {
		rec = metrics.Default()
	}

	providers := oauthproviders.NewRegistry(appCfg.BaseURL, appCfg.ProviderCredentials())
	for _, p := range providers.Enabled() {
		logger.Info("oauth provider enabled",
			zap.String("provider", p.Kind.String()),
			zap.String("redirect_url", oauthproviders.CallbackURL(appCfg.BaseURL, p.Kind)))
	}

	res := resolver.New(deps.Identities, logger)
	res.SetMetrics(rec)

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	r.Use(chimw.RequestID)

	// Request timeout middleware: prevents requests from hanging indefinitely.
	// The callback's provider round trips are bounded separately.
	r.Use(chimw.Timeout(30 * time.Second))

	// CORS middleware: must be early in the chain to handle preflight requests.
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// Session middleware: loads SessionUser into context if logged in.
	r.Use(sessionMgr.LoadSessionUser)

	// CSRF protects the state-changing browser routes. The OAuth callback is
	// a cross-site GET guarded by its own state token.
	csrfOpts := []csrf.Option{
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.CookieName("stratasocial_csrf"),
		csrf.FieldName("csrf_token"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.Warn("CSRF validation failed",
				zap.String("path", req.URL.Path),
				zap.String("method", req.Method),
				zap.String("reason", csrf.FailureReason(req).Error()),
			)
			http.Error(w, "CSRF token invalid or missing", http.StatusForbidden)
		})),
	}
	if !secure {
		csrfOpts = append(csrfOpts, csrf.TrustedOrigins([]string{
			"localhost:8080",
			"localhost:3000",
			"127.0.0.1:8080",
			"127.0.0.1:3000",
		}))
	}
	if appCfg.SessionDomain != "" {
		csrfOpts = append(csrfOpts, csrf.Domain(appCfg.SessionDomain))
	}
	r.Use(csrf.Protect([]byte(appCfg.CSRFKey), csrfOpts...))

	// ─────────────────────────────────────────────────────────────────────────────
	// Routes
	// ─────────────────────────────────────────────────────────────────────────────

	checks := []healthfeature.Check{healthfeature.MongoCheck(deps.MongoClient)}
	if deps.SQLite != nil {
		checks = append(checks, healthfeature.Check{Name: "sqlite", Ping: deps.SQLite.Ping})
	}
	healthHandler := healthfeature.NewHandler(logger, checks...)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	if appCfg.MetricsEnabled {
		r.With(auth.BearerKey(appCfg.MetricsKey, logger)).Handle("/metrics", metrics.Handler())
	}

	loginHandler := loginfeature.NewHandler(providers, logger)
	r.Mount("/login", loginfeature.Routes(loginHandler))

	oauthHandler := oauthlogin.NewHandler(oauthlogin.Deps{
		Providers:   providers,
		States:      oauthstate.New(deps.MongoDatabase),
		Normalizer:  normalize.Normalizer{},
		Resolver:    res,
		SessionMgr:  sessionMgr,
		Logins:      loginStore,
		Sessions:    sessionsStore,
		Audit:       auditLogger,
		Metrics:     rec,
		ErrLog:      errLog,
		Logger:      logger,
		SuccessPath: appCfg.LoginSuccessPath,
		SessionTTL:  appCfg.SessionMaxAge,
	})
	r.Mount("/auth", oauthlogin.Routes(oauthHandler))

	profileHandler := profilefeature.NewHandler(deps.Identities, loginStore, sessionsStore, errLog, logger)
	r.Mount("/me", profilefeature.Routes(profileHandler, sessionMgr))

	activityHandler := auditlogfeature.NewHandler(auditStore, errLog, logger)
	r.Mount("/activity", auditlogfeature.Routes(activityHandler, sessionMgr))

	statsHandler := statsfeature.NewHandler(deps.Identities, loginStore, errLog, logger)
	r.Mount("/stats", statsfeature.Routes(statsHandler, sessionMgr))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, auditLogger, sessionsStore, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler, sessionMgr))

	errorsHandler := errorsfeature.NewHandler()
	r.Get("/unauthorized", errorsHandler.Unauthorized)
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		if _, ok := auth.CurrentUser(req); ok {
			http.Redirect(w, req, "/me", http.StatusSeeOther)
			return
		}
		http.Redirect(w, req, "/login", http.StatusSeeOther)
	})

	r.NotFound(errorsHandler.NotFound)
	r.MethodNotAllowed(errorsHandler.MethodNotAllowed)

	return r, nil
}
