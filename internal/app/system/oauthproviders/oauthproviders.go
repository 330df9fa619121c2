// internal/app/system/oauthproviders/oauthproviders.go

// Package oauthproviders holds the OAuth2 configuration and user-info
// endpoint for each supported social login provider.
package oauthproviders

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/stratasocial/internal/domain/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// MaxUserInfoBytes bounds the user-info response body.
const MaxUserInfoBytes = 1 << 20

// DefaultFetchTimeout applies to the user-info request when the provider
// has no explicit timeout.
const DefaultFetchTimeout = 10 * time.Second

type definition struct {
	endpoint    oauth2.Endpoint
	scopes      []string
	userInfoURL string
}

var definitions = map[models.ProviderKind]definition{
	models.ProviderGitHub: {
		endpoint:    github.Endpoint,
		scopes:      []string{"read:user", "user:email"},
		userInfoURL: "https://api.github.com/user",
	},
	models.ProviderGoogle: {
		endpoint:    google.Endpoint,
		scopes:      []string{"openid", "email", "profile"},
		userInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
	},
	models.ProviderFacebook: {
		endpoint:    facebook.Endpoint,
		scopes:      []string{"email", "public_profile"},
		userInfoURL: "https://graph.facebook.com/me?fields=id,name,email,picture",
	},
}

// Credentials are the client registration for one provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Complete reports whether both halves of the registration are set.
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

// StatusError is returned when the user-info endpoint answers non-2xx.
type StatusError struct {
	Provider   models.ProviderKind
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s userinfo: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Provider is one configured login provider.
type Provider struct {
	Kind        models.ProviderKind
	OAuth       *oauth2.Config
	UserInfoURL string
	Timeout     time.Duration
}

// New builds a provider with its stock endpoints. The redirect URL is
// baseURL + "/auth/<provider>/callback".
func New(kind models.ProviderKind, creds Credentials, baseURL string) (*Provider, error) {
	def, ok := definitions[kind]
	if !ok {
		return nil, &models.UnsupportedProviderError{Provider: string(kind)}
	}
	return &Provider{
		Kind: kind,
		OAuth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  CallbackURL(baseURL, kind),
			Scopes:       append([]string(nil), def.scopes...),
			Endpoint:     def.endpoint,
		},
		UserInfoURL: def.userInfoURL,
		Timeout:     DefaultFetchTimeout,
	}, nil
}

// CallbackURL returns the absolute callback URL for kind.
func CallbackURL(baseURL string, kind models.ProviderKind) string {
	return strings.TrimRight(baseURL, "/") + StartPath(kind) + "/callback"
}

// StartPath returns the path that begins the login flow for kind.
func StartPath(kind models.ProviderKind) string {
	return "/auth/" + string(kind)
}

// AuthCodeURL returns the provider consent URL carrying state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.OAuth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s token exchange: %w", p.Kind, err)
	}
	return tok, nil
}

// FetchAttributes calls the user-info endpoint with token and parses the
// JSON object it returns.
func (p *Provider) FetchAttributes(ctx context.Context, token *oauth2.Token) (models.Attributes, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return models.Attributes{}, fmt.Errorf("%s userinfo request: %w", p.Kind, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.OAuth.Client(ctx, token).Do(req)
	if err != nil {
		return models.Attributes{}, fmt.Errorf("%s userinfo: %w", p.Kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxUserInfoBytes))
	if err != nil {
		return models.Attributes{}, fmt.Errorf("%s userinfo read: %w", p.Kind, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return models.Attributes{}, &StatusError{Provider: p.Kind, StatusCode: resp.StatusCode, Body: snippet}
	}

	attrs, err := models.ParseAttributes(body)
	if err != nil {
		return models.Attributes{}, fmt.Errorf("%s userinfo decode: %w", p.Kind, err)
	}
	return attrs, nil
}

// Registry is the set of enabled providers, in display order.
type Registry struct {
	byKind map[models.ProviderKind]*Provider
	order  []models.ProviderKind
}

// NewRegistry enables every provider whose credentials are complete.
// Providers are ordered as in models.AllProviders.
func NewRegistry(baseURL string, creds map[models.ProviderKind]Credentials) *Registry {
	r := &Registry{byKind: map[models.ProviderKind]*Provider{}}
	for _, opt := range models.AllProviders {
		c, ok := creds[opt.Value]
		if !ok || !c.Complete() {
			continue
		}
		p, err := New(opt.Value, c, baseURL)
		if err != nil {
			continue
		}
		r.Register(p)
	}
	return r
}

// Register adds or replaces p.
func (r *Registry) Register(p *Provider) {
	if p == nil {
		return
	}
	if _, exists := r.byKind[p.Kind]; !exists {
		r.order = append(r.order, p.Kind)
	}
	r.byKind[p.Kind] = p
}

// Get returns the provider for kind when enabled.
func (r *Registry) Get(kind models.ProviderKind) (*Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.byKind[kind]
	return p, ok
}

// Enabled returns the enabled providers in order.
func (r *Registry) Enabled() []*Provider {
	if r == nil {
		return nil
	}
	out := make([]*Provider, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.byKind[k])
	}
	return out
}

// Len returns the number of enabled providers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}
