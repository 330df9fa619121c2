package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/stratasocial/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func okCheck(name string) Check {
	return Check{Name: name, Ping: func(context.Context) error { return nil }}
}

func downCheck(name string) Check {
	return Check{Name: name, Ping: func(context.Context) error { return errors.New("down") }}
}

func TestHandler_Check(t *testing.T) {
	tests := []struct {
		name       string
		checks     []Check
		wantStatus int
		wantBody   string
	}{
		{"all ok", []Check{okCheck("mongodb"), okCheck("identity_store")}, http.StatusOK, "ok"},
		{"one down", []Check{okCheck("mongodb"), downCheck("identity_store")}, http.StatusServiceUnavailable, "degraded"},
		{"no checks", nil, http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(zap.NewNop(), tt.checks...)
			rec := httptest.NewRecorder()
			h.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp Response
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantBody {
				t.Errorf("status field = %q, want %q", resp.Status, tt.wantBody)
			}
			if len(resp.Services) != len(tt.checks) {
				t.Errorf("services = %v", resp.Services)
			}
		})
	}
}

func TestHandler_ReadyAndLive(t *testing.T) {
	h := NewHandler(zap.NewNop(), downCheck("mongodb"))

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Ready() status = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Live() status = %d, want 200", rec.Code)
	}
}

func TestRoutesAndRootEndpoints(t *testing.T) {
	h := NewHandler(zap.NewNop(), okCheck("mongodb"))
	r := chi.NewRouter()
	r.Mount("/health", Routes(h))
	MountRootEndpoints(r, h)

	for _, path := range []string{"/health", "/health/ready", "/health/live", "/ready", "/readyz", "/livez"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("GET %s = %d, want 200", path, rec.Code)
			}
		})
	}
}

func TestMongoCheck(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := NewHandler(zap.NewNop(), MongoCheck(db.Client()))

	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
