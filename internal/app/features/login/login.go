// internal/app/features/login/login.go
package login

import (
	"net/http"

	"github.com/dalemusser/stratasocial/internal/app/features/oauthlogin"
	"github.com/dalemusser/stratasocial/internal/app/system/auth"
	"github.com/dalemusser/stratasocial/internal/app/system/jsonutil"
	"github.com/dalemusser/stratasocial/internal/app/system/oauthproviders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// messages are the user-facing texts for callback error codes. Codes
// reported by a provider and not listed here use the generic message.
var messages = map[string]string{
	oauthlogin.CodeInvalidState:        "Your sign-in link expired or was already used. Please try again.",
	oauthlogin.CodeTokenExchangeFailed: "The provider did not accept the sign-in. Please try again.",
	oauthlogin.CodeUserInfoFailed:      "We could not read your profile from the provider.",
	oauthlogin.CodeUnsupportedProvider: "That sign-in provider is not available.",
	oauthlogin.CodeMalformedProfile:    "The provider returned a profile we could not use.",
	oauthlogin.CodeStoreUnavailable:    "Sign-in is temporarily unavailable. Please try again shortly.",
	oauthlogin.CodeIdentityError:       "Something went wrong while signing you in.",
	oauthlogin.CodeSessionError:        "We could not start your session. Please try again.",
	"access_denied":                    "Sign-in was cancelled.",
}

const genericMessage = "Sign-in failed. Please try again."

// ProviderLink is one sign-in option.
type ProviderLink struct {
	Provider string `json:"provider"`
	Label    string `json:"label"`
	StartURL string `json:"start_url"`
}

// Page is the /login response body.
type Page struct {
	Providers []ProviderLink `json:"providers"`
	Error     string         `json:"error,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Handler serves the provider chooser.
type Handler struct {
	providers *oauthproviders.Registry
	logger    *zap.Logger
}

func NewHandler(providers *oauthproviders.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{providers: providers, logger: logger}
}

// Routes returns a chi.Router with login routes mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.showLogin)
	return r
}

// showLogin lists the enabled providers. A signed-in identity without a
// pending error goes straight to /me.
func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	errCode := r.URL.Query().Get("error")
	if _, ok := auth.CurrentUser(r); ok && errCode == "" {
		http.Redirect(w, r, oauthlogin.DefaultSuccessPath, http.StatusSeeOther)
		return
	}

	page := Page{Providers: Links(h.providers)}
	if errCode != "" {
		page.Error = oauthlogin.ProviderErrorCode(errCode)
		page.Message = Message(page.Error)
	}
	jsonutil.OK(w, page)
}

// Links returns a sign-in link per enabled provider, in display order.
func Links(reg *oauthproviders.Registry) []ProviderLink {
	enabled := reg.Enabled()
	out := make([]ProviderLink, 0, len(enabled))
	for _, p := range enabled {
		out = append(out, ProviderLink{
			Provider: string(p.Kind),
			Label:    p.Kind.Label(),
			StartURL: oauthproviders.StartPath(p.Kind),
		})
	}
	return out
}

// Message returns the user-facing text for a callback error code.
func Message(code string) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return genericMessage
}
