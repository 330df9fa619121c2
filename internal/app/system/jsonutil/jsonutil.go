// Package jsonutil provides helper functions for JSON API responses.
//
// Error bodies have the shape {"error": "<code>"}; codes are stable
// snake_case strings that clients can switch on.
package jsonutil

import (
	"net/http"

	"github.com/goccy/go-json"
)

// JSON writes a JSON response with the given status code.
//
// Usage:
//
//	jsonutil.JSON(w, http.StatusOK, map[string]any{
//	    "providers": list,
//	})
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// OK writes a 200 OK JSON response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Error writes {"error": code} with the given status.
func Error(w http.ResponseWriter, status int, code string) {
	JSON(w, status, map[string]string{"error": code})
}

// BadRequest writes a 400 error response.
func BadRequest(w http.ResponseWriter, code string) {
	Error(w, http.StatusBadRequest, code)
}

// Unauthorized writes a 401 error response.
func Unauthorized(w http.ResponseWriter, code string) {
	Error(w, http.StatusUnauthorized, code)
}

// NotFound writes a 404 error response.
func NotFound(w http.ResponseWriter, code string) {
	Error(w, http.StatusNotFound, code)
}

// InternalError writes a 500 error response. Log the underlying error
// separately; never put it in code.
func InternalError(w http.ResponseWriter, code string) {
	Error(w, http.StatusInternalServerError, code)
}

// Unavailable writes a 503 error response.
func Unavailable(w http.ResponseWriter, code string) {
	Error(w, http.StatusServiceUnavailable, code)
}
