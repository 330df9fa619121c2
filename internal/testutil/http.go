package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/dalemusser/stratasocial/internal/app/system/auth"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TestIdentity is the signed-in principal injected into handler tests.
type TestIdentity struct {
	ID       string
	Provider models.ProviderKind
	Name     string
	Email    string
}

// GitHubIdentity returns a TestIdentity with a fresh id.
func GitHubIdentity() TestIdentity {
	return TestIdentity{
		ID:       primitive.NewObjectID().Hex(),
		Provider: models.ProviderGitHub,
		Name:     "Test User",
		Email:    "user@test.com",
	}
}

// WithIdentity adds the identity to the request context, bypassing the
// session middleware.
func WithIdentity(r *http.Request, id TestIdentity) *http.Request {
	return auth.WithTestUser(r, &auth.SessionUser{
		ID:       id.ID,
		Provider: id.Provider,
		Name:     id.Name,
		Email:    id.Email,
		Token:    "test-session-token",
	})
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

// NewAuthenticatedRequest creates an HTTP request with an identity in context.
func NewAuthenticatedRequest(method, target string, id TestIdentity) *http.Request {
	return WithIdentity(httptest.NewRequest(method, target, nil), id)
}

// ResponseRecorder wraps httptest.ResponseRecorder with assertions.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a new ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t interface{ Errorf(string, ...any) }, expected int) {
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d", r.Code, expected)
	}
}

// AssertRedirect checks for a redirect to the expected location.
func (r *ResponseRecorder) AssertRedirect(t interface{ Errorf(string, ...any) }, expectedLocation string) {
	switch r.Code {
	case http.StatusSeeOther, http.StatusFound, http.StatusTemporaryRedirect, http.StatusMovedPermanently:
	default:
		t.Errorf("expected redirect status, got %d", r.Code)
	}
	if location := r.Header().Get("Location"); location != expectedLocation {
		t.Errorf("redirect location: got %q, want %q", location, expectedLocation)
	}
}

// AssertContains checks if the response body contains the expected string.
func (r *ResponseRecorder) AssertContains(t interface{ Errorf(string, ...any) }, expected string) {
	if !strings.Contains(r.Body.String(), expected) {
		t.Errorf("response body does not contain %q", expected)
	}
}
