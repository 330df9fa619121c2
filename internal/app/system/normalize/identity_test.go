package normalize

import (
	"errors"
	"strings"
	"testing"

	"github.com/dalemusser/stratasocial/internal/domain/models"
)

func mustParse(t *testing.T, payload string) models.Attributes {
	t.Helper()
	attrs, err := models.ParseAttributes([]byte(payload))
	if err != nil {
		t.Fatalf("ParseAttributes(%s) error = %v", payload, err)
	}
	return attrs
}

func deref(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}

func TestIdentity_Google(t *testing.T) {
	payload := mustParse(t, `{"sub":"g-1","name":"Jane","email":"jane@x.com","picture":"https://x/p.jpg"}`)

	got, err := Identity(models.ProviderGoogle, payload)
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}
	if got.Provider != models.ProviderGoogle {
		t.Errorf("Provider = %q, want %q", got.Provider, models.ProviderGoogle)
	}
	if got.ProviderID != "g-1" {
		t.Errorf("ProviderID = %q, want %q", got.ProviderID, "g-1")
	}
	if got.DisplayName != "Jane" {
		t.Errorf("DisplayName = %q, want %q", got.DisplayName, "Jane")
	}
	if deref(got.Email) != "jane@x.com" {
		t.Errorf("Email = %q, want %q", deref(got.Email), "jane@x.com")
	}
	if deref(got.AvatarURL) != "https://x/p.jpg" {
		t.Errorf("AvatarURL = %q, want %q", deref(got.AvatarURL), "https://x/p.jpg")
	}
	if !got.RawAttributes.Equal(payload) {
		t.Error("RawAttributes should carry the payload unchanged")
	}
}

func TestIdentity_GitHubNameFallback(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"name absent", `{"id":12345,"login":"johndoe"}`, "johndoe"},
		{"name empty", `{"id":12345,"login":"johndoe","name":""}`, "johndoe"},
		{"name blank", `{"id":12345,"login":"johndoe","name":"   "}`, "johndoe"},
		{"name null", `{"id":12345,"login":"johndoe","name":null}`, "johndoe"},
		{"name present", `{"id":12345,"login":"johndoe","name":"John Doe"}`, "John Doe"},
		{"name padded", `{"id":12345,"login":"johndoe","name":"  John  "}`, "John"},
		{"neither", `{"id":12345}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Identity(models.ProviderGitHub, mustParse(t, tt.payload))
			if err != nil {
				t.Fatalf("Identity() error = %v", err)
			}
			if got.DisplayName != tt.want {
				t.Errorf("DisplayName = %q, want %q", got.DisplayName, tt.want)
			}
		})
	}
}

func TestIdentity_GitHubIdentifierIsTypeStable(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"number", `{"id":12345}`, "12345"},
		{"string", `{"id":"12345"}`, "12345"},
		{"large number", `{"id":98765432109876543210}`, "98765432109876543210"},
		{"exponent", `{"id":1.2345e4}`, "12345"},
		{"bare exponent", `{"id":1e5}`, "100000"},
		{"trailing zero fraction", `{"id":12345.0}`, "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Identity(models.ProviderGitHub, mustParse(t, tt.payload))
			if err != nil {
				t.Fatalf("Identity() error = %v", err)
			}
			if got.ProviderID != tt.want {
				t.Errorf("ProviderID = %q, want %q", got.ProviderID, tt.want)
			}
		})
	}
}

func TestIdentity_GitHubFields(t *testing.T) {
	payload := mustParse(t, `{"login":"octocat","id":1,"avatar_url":"https://avatars.githubusercontent.com/u/1","name":"The Octocat","email":" Octo@GitHub.com "}`)

	got, err := Identity(models.ProviderGitHub, payload)
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}
	if got.ProviderID != "1" {
		t.Errorf("ProviderID = %q, want %q", got.ProviderID, "1")
	}
	if deref(got.Email) != "octo@github.com" {
		t.Errorf("Email = %q, want %q", deref(got.Email), "octo@github.com")
	}
	if deref(got.AvatarURL) != "https://avatars.githubusercontent.com/u/1" {
		t.Errorf("AvatarURL = %q", deref(got.AvatarURL))
	}
}

func TestIdentity_FacebookPicture(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    *string
	}{
		{"nested url", `{"id":"fb-1","name":"Jane","picture":{"data":{"url":"https://x/y.jpg"}}}`, models.StringPtr("https://x/y.jpg")},
		{"picture absent", `{"id":"fb-1","name":"Jane"}`, nil},
		{"data absent", `{"id":"fb-1","picture":{}}`, nil},
		{"url absent", `{"id":"fb-1","picture":{"data":{"is_silhouette":true}}}`, nil},
		{"picture not a map", `{"id":"fb-1","picture":"https://x/y.jpg"}`, nil},
		{"url null", `{"id":"fb-1","picture":{"data":{"url":null}}}`, nil},
		{"url wrong kind", `{"id":"fb-1","picture":{"data":{"url":7}}}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Identity(models.ProviderFacebook, mustParse(t, tt.payload))
			if err != nil {
				t.Fatalf("Identity() error = %v", err)
			}
			if deref(got.AvatarURL) != deref(tt.want) {
				t.Errorf("AvatarURL = %q, want %q", deref(got.AvatarURL), deref(tt.want))
			}
		})
	}
}

func TestIdentity_OptionalFieldsAbsent(t *testing.T) {
	got, err := Identity(models.ProviderGoogle, mustParse(t, `{"sub":"g-2","email":"   "}`))
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}
	if got.Email != nil {
		t.Errorf("Email = %q, want absent", *got.Email)
	}
	if got.AvatarURL != nil {
		t.Errorf("AvatarURL = %q, want absent", *got.AvatarURL)
	}
	if got.DisplayName != "" {
		t.Errorf("DisplayName = %q, want empty", got.DisplayName)
	}
}

func TestIdentity_Malformed(t *testing.T) {
	tests := []struct {
		name      string
		provider  models.ProviderKind
		payload   string
		wantField string
	}{
		{"github id missing", models.ProviderGitHub, `{"login":"johndoe"}`, "id"},
		{"github id null", models.ProviderGitHub, `{"id":null}`, "id"},
		{"github id bool", models.ProviderGitHub, `{"id":true}`, "id"},
		{"github id fraction", models.ProviderGitHub, `{"id":1.5}`, "id"},
		{"github id beyond exact float range", models.ProviderGitHub, `{"id":1e300}`, "id"},
		{"google sub missing", models.ProviderGoogle, `{"name":"Jane"}`, "sub"},
		{"google sub blank", models.ProviderGoogle, `{"sub":"  "}`, "sub"},
		{"google name wrong kind", models.ProviderGoogle, `{"sub":"g-1","name":{"first":"Jane"}}`, "name"},
		{"google email wrong kind", models.ProviderGoogle, `{"sub":"g-1","email":42}`, "email"},
		{"facebook id object", models.ProviderFacebook, `{"id":{"v":1}}`, "id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Identity(tt.provider, mustParse(t, tt.payload))
			var mpe *models.MalformedPayloadError
			if !errors.As(err, &mpe) {
				t.Fatalf("Identity() error = %v, want MalformedPayloadError", err)
			}
			if mpe.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", mpe.Field, tt.wantField)
			}
			if mpe.Provider != tt.provider {
				t.Errorf("Provider = %q, want %q", mpe.Provider, tt.provider)
			}
		})
	}
}

func TestIdentity_UnsupportedProvider(t *testing.T) {
	payload := mustParse(t, `{"id":"1","name":"x"}`)

	for _, p := range []models.ProviderKind{"twitter", "", "GitHub"} {
		t.Run(string(p), func(t *testing.T) {
			_, err := Identity(p, payload)
			var upe *models.UnsupportedProviderError
			if !errors.As(err, &upe) {
				t.Fatalf("Identity(%q) error = %v, want UnsupportedProviderError", p, err)
			}
			if upe.Provider != string(p) {
				t.Errorf("Provider = %q, want %q", upe.Provider, p)
			}
		})
	}
}

func TestIdentity_Deterministic(t *testing.T) {
	payloads := map[models.ProviderKind]string{
		models.ProviderGitHub:   `{"id":42,"login":"l","name":"N","email":"a@b.com","avatar_url":"https://a/b"}`,
		models.ProviderGoogle:   `{"sub":"g","name":"N","email":"a@b.com","picture":"https://a/b"}`,
		models.ProviderFacebook: `{"id":"f","name":"N","email":"a@b.com","picture":{"data":{"url":"https://a/b"}}}`,
	}

	for p, raw := range payloads {
		t.Run(string(p), func(t *testing.T) {
			payload := mustParse(t, raw)
			first, err := Identity(p, payload)
			if err != nil {
				t.Fatalf("Identity() error = %v", err)
			}
			for i := 0; i < 5; i++ {
				again, err := Normalizer{}.Identity(p, payload)
				if err != nil {
					t.Fatalf("Identity() error = %v", err)
				}
				if again.Key() != first.Key() ||
					again.DisplayName != first.DisplayName ||
					deref(again.Email) != deref(first.Email) ||
					deref(again.AvatarURL) != deref(first.AvatarURL) ||
					!again.RawAttributes.Equal(first.RawAttributes) {
					t.Fatalf("call %d = %+v, want %+v", i, again, first)
				}
			}
		})
	}
}

func TestIdentity_InvalidDisplayFieldsAreDropped(t *testing.T) {
	long := "https://x/" + strings.Repeat("a", 500)
	tests := []struct {
		name     string
		provider models.ProviderKind
		payload  string
	}{
		{"relative picture", models.ProviderGoogle, `{"sub":"g-1","name":"Jane","picture":"/avatars/default.png"}`},
		{"picture not a url", models.ProviderGoogle, `{"sub":"g-1","name":"Jane","picture":"not a url"}`},
		{"picture too long", models.ProviderGoogle, `{"sub":"g-1","name":"Jane","picture":"` + long + `"}`},
		{"github avatar not a url", models.ProviderGitHub, `{"id":7,"name":"Jane","avatar_url":"gravatar"}`},
		{"facebook avatar not a url", models.ProviderFacebook, `{"id":"fb-1","name":"Jane","picture":{"data":{"url":"silhouette"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Identity(tt.provider, mustParse(t, tt.payload))
			if err != nil {
				t.Fatalf("Identity() error = %v", err)
			}
			if got.AvatarURL != nil {
				t.Errorf("AvatarURL = %q, want absent", *got.AvatarURL)
			}
			if got.DisplayName != "Jane" {
				t.Errorf("DisplayName = %q, want %q", got.DisplayName, "Jane")
			}
		})
	}
}

func TestIdentity_OverlongEmailIsDropped(t *testing.T) {
	email := strings.Repeat("a", 320) + "@x.com"
	got, err := Identity(models.ProviderGoogle, mustParse(t, `{"sub":"g-1","email":"`+email+`"}`))
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}
	if got.Email != nil {
		t.Errorf("Email = %q, want absent", *got.Email)
	}
}

func TestIdentity_LongDisplayNameIsClipped(t *testing.T) {
	name := strings.Repeat("é", 300)
	got, err := Identity(models.ProviderFacebook, mustParse(t, `{"id":"fb-9","name":"`+name+`"}`))
	if err != nil {
		t.Fatalf("Identity() error = %v", err)
	}
	if n := len([]rune(got.DisplayName)); n != 255 {
		t.Errorf("DisplayName has %d runes, want 255", n)
	}
}
