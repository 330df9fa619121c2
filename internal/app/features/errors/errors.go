// internal/app/features/errors/errors.go
package errors

import (
	"net/http"

	"github.com/dalemusser/stratasocial/internal/app/system/jsonutil"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ErrorLogger wraps the zap logger for request-scoped error logging.
type ErrorLogger struct {
	logger *zap.Logger
}

// NewErrorLogger creates a new ErrorLogger.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorLogger{logger: logger}
}

func requestFields(r *http.Request) []zap.Field {
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
	}
	if id := chimw.GetReqID(r.Context()); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	return fields
}

// Log logs an error with the given message and error.
func (e *ErrorLogger) Log(r *http.Request, msg string, err error) {
	e.logger.Error(msg, append(requestFields(r), zap.Error(err))...)
}

// LogWithFields logs an error with additional fields.
func (e *ErrorLogger) LogWithFields(r *http.Request, msg string, err error, fields ...zap.Field) {
	all := append(requestFields(r), zap.Error(err))
	e.logger.Error(msg, append(all, fields...)...)
}

// Warn logs a non-fatal request problem.
func (e *ErrorLogger) Warn(r *http.Request, msg string, fields ...zap.Field) {
	e.logger.Warn(msg, append(requestFields(r), fields...)...)
}

// Handler provides JSON fallbacks for the router.
type Handler struct{}

// NewHandler creates a new error Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// NotFound writes {"error":"not_found"}.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	jsonutil.NotFound(w, "not_found")
}

// MethodNotAllowed writes {"error":"method_not_allowed"}.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	jsonutil.Error(w, http.StatusMethodNotAllowed, "method_not_allowed")
}

// Unauthorized writes {"error":"unauthorized"}.
func (h *Handler) Unauthorized(w http.ResponseWriter, r *http.Request) {
	jsonutil.Unauthorized(w, "unauthorized")
}
