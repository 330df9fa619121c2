package login

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/stratasocial/internal/app/features/oauthlogin"
	"github.com/dalemusser/stratasocial/internal/app/system/oauthproviders"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	"github.com/dalemusser/stratasocial/internal/testutil"
	"github.com/goccy/go-json"
)

func newTestHandler() *Handler {
	reg := oauthproviders.NewRegistry("https://app.test", map[models.ProviderKind]oauthproviders.Credentials{
		models.ProviderFacebook: {ClientID: "fb", ClientSecret: "fb-secret"},
		models.ProviderGitHub:   {ClientID: "gh", ClientSecret: "gh-secret"},
		models.ProviderGoogle:   {ClientID: "only-id"},
	})
	return NewHandler(reg, nil)
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) Page {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var page Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return page
}

func TestShowLogin_ListsEnabledProvidersInOrder(t *testing.T) {
	h := newTestHandler()
	rec := httptest.NewRecorder()
	h.showLogin(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	page := decodePage(t, rec)
	want := []ProviderLink{
		{Provider: "github", Label: "GitHub", StartURL: "/auth/github"},
		{Provider: "facebook", Label: "Facebook", StartURL: "/auth/facebook"},
	}
	if len(page.Providers) != len(want) {
		t.Fatalf("providers = %+v, want %+v", page.Providers, want)
	}
	for i := range want {
		if page.Providers[i] != want[i] {
			t.Errorf("providers[%d] = %+v, want %+v", i, page.Providers[i], want[i])
		}
	}
	if page.Error != "" || page.Message != "" {
		t.Errorf("unexpected error on clean page: %+v", page)
	}
}

func TestShowLogin_EchoesErrorCode(t *testing.T) {
	tests := []struct {
		query   string
		code    string
		message string
	}{
		{"invalid_state", oauthlogin.CodeInvalidState, messages[oauthlogin.CodeInvalidState]},
		{"access_denied", "access_denied", messages["access_denied"]},
		{"temporarily_unavailable", "temporarily_unavailable", genericMessage},
		{"%3Cscript%3E", "script", genericMessage},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h := newTestHandler()
			rec := httptest.NewRecorder()
			h.showLogin(rec, httptest.NewRequest(http.MethodGet, "/login?error="+tt.query, nil))

			page := decodePage(t, rec)
			if page.Error != tt.code {
				t.Errorf("Error = %q, want %q", page.Error, tt.code)
			}
			if page.Message != tt.message {
				t.Errorf("Message = %q, want %q", page.Message, tt.message)
			}
		})
	}
}

func TestShowLogin_SignedInRedirects(t *testing.T) {
	h := newTestHandler()

	rec := testutil.NewRecorder()
	h.showLogin(rec, testutil.NewAuthenticatedRequest(http.MethodGet, "/login", testutil.GitHubIdentity()))
	rec.AssertRedirect(t, oauthlogin.DefaultSuccessPath)

	// A pending error is still shown to a signed-in identity.
	rec2 := httptest.NewRecorder()
	h.showLogin(rec2, testutil.NewAuthenticatedRequest(http.MethodGet, "/login?error=invalid_state", testutil.GitHubIdentity()))
	if page := decodePage(t, rec2); page.Error != oauthlogin.CodeInvalidState {
		t.Errorf("Error = %q", page.Error)
	}
}

func TestLinks_NilRegistry(t *testing.T) {
	if got := Links(nil); len(got) != 0 {
		t.Errorf("Links(nil) = %v, want empty", got)
	}
}
