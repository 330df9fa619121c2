// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// Identity store backends.
const (
	IdentityStoreMongo  = "mongo"
	IdentityStoreSQLite = "sqlite"
)

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings (ports, TLS, logging, CORS, body limits); this
// struct covers everything specific to the identity service.
type AppConfig struct {
	// MongoDB connection configuration. Mongo always holds OAuth state,
	// tracked sessions, login records and audit events.
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Identity store: "mongo" (identities collection) or "sqlite".
	IdentityStore string
	SQLitePath    string // database file when IdentityStore is "sqlite"

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: stratasocial-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Session cookie and tracked session lifetime (default: 720h)

	// CSRF protection configuration
	CSRFKey string // Secret key for CSRF token signing (32 bytes, must be strong in production)

	// Metrics exposition. When MetricsKey is set, /metrics requires
	// "Authorization: Bearer <key>".
	MetricsEnabled bool
	MetricsKey     string

	// BaseURL is the externally visible origin; provider callback URLs are
	// built from it and must match the provider app registration.
	BaseURL string // e.g., "https://example.com" or "http://localhost:8080"

	// Where a completed login redirects.
	LoginSuccessPath string

	// Provider client registrations. A provider is enabled when both its
	// id and secret are set.
	GitHubClientID       string
	GitHubClientSecret   string
	GoogleClientID       string
	GoogleClientSecret   string
	FacebookClientID     string
	FacebookClientSecret string

	// Audit logging configuration
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	AuditLogAuth     string // login started/succeeded/failed, logout
	AuditLogIdentity string // identity created, write conflict resolved

	// Operation timeouts
	TimeoutPing     time.Duration
	TimeoutShort    time.Duration
	TimeoutMedium   time.Duration
	TimeoutProvider time.Duration // token exchange plus user-info fetch

	// Background cleanup of expired OAuth state and tracked sessions.
	CleanupInterval time.Duration
}
