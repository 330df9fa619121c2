package jsonutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		data       any
		wantStatus int
		wantBody   string
	}{
		{"200 with data", http.StatusOK, map[string]string{"message": "hello"}, http.StatusOK, `{"message":"hello"}`},
		{"202 with data", http.StatusAccepted, map[string]int{"n": 1}, http.StatusAccepted, `{"n":1}`},
		{"nil body", http.StatusOK, nil, http.StatusOK, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			JSON(rec, tt.status, tt.data)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("Content-Type = %q", ct)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, string)
		status int
	}{
		{"bad request", BadRequest, http.StatusBadRequest},
		{"unauthorized", Unauthorized, http.StatusUnauthorized},
		{"not found", NotFound, http.StatusNotFound},
		{"internal", InternalError, http.StatusInternalServerError},
		{"unavailable", Unavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec, "some_code")
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"some_code"}` {
				t.Errorf("body = %q", got)
			}
		})
	}
}
