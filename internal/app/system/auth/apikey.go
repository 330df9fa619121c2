package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// BearerKey returns middleware that requires "Authorization: Bearer <key>".
// It guards machine endpoints such as /metrics. An empty key disables the
// check, so scrapers on a private network need no credentials.
func BearerKey(key string, logger *zap.Logger) func(http.Handler) http.Handler {
	if key == "" {
		logger.Info("bearer key not configured; endpoint is open")
		return func(next http.Handler) http.Handler { return next }
	}

	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, provided, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				logger.Debug("bearer auth rejected: missing or malformed header",
					zap.String("path", r.URL.Path))
				w.Header().Set("WWW-Authenticate", `Bearer realm="stratasocial"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), want) != 1 {
				logger.Warn("bearer auth rejected: wrong key",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
