// Package timeouts holds the per-operation deadlines used by handlers and
// stores. Values are set once at startup from configuration.
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults used until Configure is called.
const (
	DefaultPing     = 2 * time.Second
	DefaultShort    = 5 * time.Second
	DefaultMedium   = 10 * time.Second
	DefaultProvider = 15 * time.Second
)

var (
	mu       sync.RWMutex
	ping     = DefaultPing
	short    = DefaultShort
	medium   = DefaultMedium
	provider = DefaultProvider
)

// Ping returns the timeout for health checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Short returns the timeout for single-document reads.
func Short() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return short
}

// Medium returns the timeout for the store work of one login callback.
func Medium() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return medium
}

// Provider returns the timeout for calls to an OAuth provider (token
// exchange and user-info fetch).
func Provider() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return provider
}

// Config holds timeout values. Zero fields keep the current value.
type Config struct {
	Ping     time.Duration
	Short    time.Duration
	Medium   time.Duration
	Provider time.Duration
}

// Configure sets custom timeout values.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Short > 0 {
		short = cfg.Short
	}
	if cfg.Medium > 0 {
		medium = cfg.Medium
	}
	if cfg.Provider > 0 {
		provider = cfg.Provider
	}
}

// Reset restores all timeouts to defaults.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	short = DefaultShort
	medium = DefaultMedium
	provider = DefaultProvider
}

// Current returns the current timeout configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{Ping: ping, Short: short, Medium: medium, Provider: provider}
}

// WithTimeout is context.WithTimeout that logs operation when the deadline
// was hit by the time cancel is called.
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
