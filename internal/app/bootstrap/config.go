// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/stratasocial/internal/app/system/auditlog"
	"github.com/dalemusser/stratasocial/internal/app/system/oauthproviders"
	"github.com/dalemusser/stratasocial/internal/app/system/timeouts"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "STRATASOCIAL"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: STRATASOCIAL_MONGO_URI, STRATASOCIAL_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "stratasocial", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Identity store
	{Name: "identity_store", Default: IdentityStoreMongo, Desc: "Identity store backend: 'mongo' or 'sqlite'"},
	{Name: "sqlite_path", Default: "./data/identities.db", Desc: "SQLite database file (identity_store=sqlite)"},

	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "stratasocial-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session lifetime (e.g., 24h, 720h, 30m)"},

	{Name: "csrf_key", Default: "dev-only-csrf-key-please-change-0123456789", Desc: "CSRF token signing key (32+ chars in production)"},

	// Metrics
	{Name: "metrics_enabled", Default: true, Desc: "Expose Prometheus metrics at /metrics"},
	{Name: "metrics_key", Default: "", Desc: "Bearer key required for /metrics (leave empty for open access)"},

	{Name: "base_url", Default: "http://localhost:8080", Desc: "External base URL; OAuth callback URLs are built from it"},
	{Name: "login_success_path", Default: "/me", Desc: "Redirect target after a successful login"},

	// Provider registrations
	{Name: "github_client_id", Default: "", Desc: "GitHub OAuth app client ID"},
	{Name: "github_client_secret", Default: "", Desc: "GitHub OAuth app client secret"},
	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret"},
	{Name: "facebook_client_id", Default: "", Desc: "Facebook app ID"},
	{Name: "facebook_client_secret", Default: "", Desc: "Facebook app secret"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_identity", Default: "all", Desc: "Identity event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Timeouts
	{Name: "timeout_ping", Default: "2s", Desc: "Health check ping timeout"},
	{Name: "timeout_short", Default: "5s", Desc: "Single-document store operation timeout"},
	{Name: "timeout_medium", Default: "10s", Desc: "Identity resolution and aggregate timeout"},
	{Name: "timeout_provider", Default: "15s", Desc: "Provider token exchange and user-info timeout"},

	{Name: "cleanup_interval", Default: "15m", Desc: "Interval for expired OAuth state and session cleanup"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, STRATASOCIAL_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		IdentityStore: strings.ToLower(strings.TrimSpace(appValues.String("identity_store"))),
		SQLitePath:    appValues.String("sqlite_path"),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),
		SessionMaxAge: appValues.Duration("session_max_age", 720*time.Hour),

		CSRFKey: appValues.String("csrf_key"),

		MetricsEnabled: appValues.Bool("metrics_enabled"),
		MetricsKey:     appValues.String("metrics_key"),

		BaseURL:          appValues.String("base_url"),
		LoginSuccessPath: appValues.String("login_success_path"),

		GitHubClientID:       appValues.String("github_client_id"),
		GitHubClientSecret:   appValues.String("github_client_secret"),
		GoogleClientID:       appValues.String("google_client_id"),
		GoogleClientSecret:   appValues.String("google_client_secret"),
		FacebookClientID:     appValues.String("facebook_client_id"),
		FacebookClientSecret: appValues.String("facebook_client_secret"),

		AuditLogAuth:     appValues.String("audit_log_auth"),
		AuditLogIdentity: appValues.String("audit_log_identity"),

		TimeoutPing:     appValues.Duration("timeout_ping", 2*time.Second),
		TimeoutShort:    appValues.Duration("timeout_short", 5*time.Second),
		TimeoutMedium:   appValues.Duration("timeout_medium", 10*time.Second),
		TimeoutProvider: appValues.Duration("timeout_provider", 15*time.Second),

		CleanupInterval: appValues.Duration("cleanup_interval", 15*time.Minute),
	}

	return coreCfg, appCfg, nil
}

// ProviderCredentials returns the configured registration per provider.
func (c AppConfig) ProviderCredentials() map[models.ProviderKind]oauthproviders.Credentials {
	return map[models.ProviderKind]oauthproviders.Credentials{
		models.ProviderGitHub:   {ClientID: c.GitHubClientID, ClientSecret: c.GitHubClientSecret},
		models.ProviderGoogle:   {ClientID: c.GoogleClientID, ClientSecret: c.GoogleClientSecret},
		models.ProviderFacebook: {ClientID: c.FacebookClientID, ClientSecret: c.FacebookClientSecret},
	}
}

// Timeouts returns the operation timeouts in the form timeouts.Configure takes.
func (c AppConfig) Timeouts() timeouts.Config {
	return timeouts.Config{
		Ping:     c.TimeoutPing,
		Short:    c.TimeoutShort,
		Medium:   c.TimeoutMedium,
		Provider: c.TimeoutProvider,
	}
}

// AuditConfig returns the audit destinations per category.
func (c AppConfig) AuditConfig() auditlog.Config {
	return auditlog.Config{Auth: c.AuditLogAuth, Identity: c.AuditLogIdentity}
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// Every problem is reported, not just the first.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if err := validateApp(appCfg); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	enabled := 0
	for _, c := range appCfg.ProviderCredentials() {
		if c.Complete() {
			enabled++
		}
	}
	if enabled == 0 {
		logger.Warn("no OAuth provider configured; /login will list no providers")
	}
	return nil
}

func validateApp(c AppConfig) error {
	var errs []error

	switch c.IdentityStore {
	case IdentityStoreMongo:
	case IdentityStoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("sqlite_path is required when identity_store is sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("identity_store must be %q or %q, got %q", IdentityStoreMongo, IdentityStoreSQLite, c.IdentityStore))
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url must be an absolute http(s) URL, got %q", c.BaseURL))
	}

	if !strings.HasPrefix(c.LoginSuccessPath, "/") || strings.HasPrefix(c.LoginSuccessPath, "//") {
		errs = append(errs, fmt.Errorf("login_success_path must be a local path, got %q", c.LoginSuccessPath))
	}

	for _, opt := range models.AllProviders {
		cr := c.ProviderCredentials()[opt.Value]
		if (cr.ClientID == "") != (cr.ClientSecret == "") {
			errs = append(errs, fmt.Errorf("%s: client id and secret must be set together", opt.Value))
		}
	}

	for name, v := range map[string]string{"audit_log_auth": c.AuditLogAuth, "audit_log_identity": c.AuditLogIdentity} {
		switch v {
		case auditlog.All, auditlog.DB, auditlog.Log, auditlog.Off:
		default:
			errs = append(errs, fmt.Errorf("%s must be all, db, log or off, got %q", name, v))
		}
	}

	for name, d := range map[string]time.Duration{
		"timeout_ping":     c.TimeoutPing,
		"timeout_short":    c.TimeoutShort,
		"timeout_medium":   c.TimeoutMedium,
		"timeout_provider": c.TimeoutProvider,
		"session_max_age":  c.SessionMaxAge,
		"cleanup_interval": c.CleanupInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	return errors.Join(errs...)
}
