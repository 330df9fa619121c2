package normalize

import (
	"errors"
	"math"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dalemusser/stratasocial/internal/domain/models"
	"github.com/go-playground/validator/v10"
)

// Normalizer maps provider user-info payloads to canonical identities.
// The zero value is ready to use.
type Normalizer struct{}

// Identity is the method form of the package-level Identity.
func (Normalizer) Identity(provider models.ProviderKind, payload models.Attributes) (models.CanonicalIdentity, error) {
	return Identity(provider, payload)
}

// fieldMap names the payload keys a provider uses for each canonical field.
type fieldMap struct {
	id        string
	name      string
	nameAlt   string // used when name is absent or blank
	email     string
	avatar    []string
	avatarOpt bool // a missing or mistyped nested avatar is absent, not malformed
}

var (
	githubFields = fieldMap{
		id:      "id",
		name:    "name",
		nameAlt: "login",
		email:   "email",
		avatar:  []string{"avatar_url"},
	}
	googleFields = fieldMap{
		id:     "sub",
		name:   "name",
		email:  "email",
		avatar: []string{"picture"},
	}
	facebookFields = fieldMap{
		id:        "id",
		name:      "name",
		email:     "email",
		avatar:    []string{"picture", "data", "url"},
		avatarOpt: true,
	}
)

// Identity maps a provider payload to a CanonicalIdentity.
//
// An unknown provider fails with *models.UnsupportedProviderError before any
// field is read. Missing or mistyped required fields fail with
// *models.MalformedPayloadError. The function is pure.
func Identity(provider models.ProviderKind, payload models.Attributes) (models.CanonicalIdentity, error) {
	var fields fieldMap
	switch provider {
	case models.ProviderGitHub:
		fields = githubFields
	case models.ProviderGoogle:
		fields = googleFields
	case models.ProviderFacebook:
		fields = facebookFields
	default:
		return models.CanonicalIdentity{}, &models.UnsupportedProviderError{Provider: string(provider)}
	}

	r := reader{provider: provider, attrs: payload}

	id, err := r.identifier(fields.id)
	if err != nil {
		return models.CanonicalIdentity{}, err
	}

	name, err := r.optString(fields.name)
	if err != nil {
		return models.CanonicalIdentity{}, err
	}
	if name == "" && fields.nameAlt != "" {
		if name, err = r.optString(fields.nameAlt); err != nil {
			return models.CanonicalIdentity{}, err
		}
	}

	email, err := r.optString(fields.email)
	if err != nil {
		return models.CanonicalIdentity{}, err
	}

	avatar, err := r.optStringAt(fields.avatar, fields.avatarOpt)
	if err != nil {
		return models.CanonicalIdentity{}, err
	}

	ci := models.CanonicalIdentity{
		Provider:      provider,
		ProviderID:    id,
		DisplayName:   clip(Name(name), maxDisplayName),
		Email:         models.StringPtr(displayOnly(Email(email), "max=320")),
		AvatarURL:     models.StringPtr(displayOnly(avatar, "url,max=500")),
		RawAttributes: payload,
	}
	if err := check(ci, fields); err != nil {
		return models.CanonicalIdentity{}, err
	}
	return ci, nil
}

// reader extracts typed fields from one payload.
type reader struct {
	provider models.ProviderKind
	attrs    models.Attributes
}

func (r reader) malformed(field, reason string) error {
	return &models.MalformedPayloadError{Provider: r.provider, Field: field, Reason: reason}
}

// identifier returns the canonical string form of the provider's subject id.
// Strings are kept (trimmed); integral numbers become base-10 strings so that
// 12345 and "12345" resolve to the same identity.
func (r reader) identifier(key string) (string, error) {
	v, ok := r.attrs.Get(key)
	if !ok || v.IsNull() {
		return "", r.malformed(key, "is missing")
	}
	switch v.Kind() {
	case models.KindString:
		s, _ := v.AsString()
		s = strings.TrimSpace(s)
		if s == "" {
			return "", r.malformed(key, "is empty")
		}
		return s, nil
	case models.KindNumber:
		n, _ := v.AsNumber()
		s, ok := canonicalInteger(n.String())
		if !ok {
			return "", r.malformed(key, "is not an integer")
		}
		return s, nil
	default:
		return "", r.malformed(key, "must be a string or number, got "+v.Kind().String())
	}
}

// maxExactFloat is the largest integer a float64 holds without rounding.
const maxExactFloat = 1 << 53

func canonicalInteger(literal string) (string, bool) {
	if i, ok := new(big.Int).SetString(literal, 10); ok {
		return i.String(), true
	}
	// Exponent or fraction forms such as 1.2345e4 or 12345.0.
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > maxExactFloat {
		return "", false
	}
	return strconv.FormatInt(int64(f), 10), true
}

// optString reads an optional string field. Absent, null and blank all
// read as "".
func (r reader) optString(key string) (string, error) {
	v, ok := r.attrs.Get(key)
	if !ok || v.IsNull() {
		return "", nil
	}
	s, ok := v.AsString()
	if !ok {
		return "", r.malformed(key, "must be a string, got "+v.Kind().String())
	}
	return strings.TrimSpace(s), nil
}

// optStringAt reads an optional string through nested maps. A gap anywhere
// along the path reads as "". When lenient, so does a non-string leaf.
func (r reader) optStringAt(path []string, lenient bool) (string, error) {
	if len(path) == 1 {
		return r.optString(path[0])
	}
	v, ok := r.attrs.Lookup(path...)
	if !ok || v.IsNull() {
		return "", nil
	}
	s, ok := v.AsString()
	if !ok {
		if lenient {
			return "", nil
		}
		return "", r.malformed(strings.Join(path, "."), "must be a string, got "+v.Kind().String())
	}
	return strings.TrimSpace(s), nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

const maxDisplayName = 255

// clip shortens s to at most n runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// displayOnly returns v when it passes tag and "" otherwise. Optional
// display fields that fail their format check are dropped, not fatal.
func displayOnly(v, tag string) string {
	if v == "" || validatorInstance().Var(v, tag) != nil {
		return ""
	}
	return v
}

// check validates the canonical identity's field constraints and reports
// the first violation against the payload key it came from.
func check(ci models.CanonicalIdentity, fields fieldMap) error {
	err := validatorInstance().Struct(ci)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &models.MalformedPayloadError{Provider: ci.Provider, Field: "payload", Reason: err.Error()}
	}
	fe := verrs[0]
	source := fe.Field()
	switch fe.StructField() {
	case "ProviderID":
		source = fields.id
	case "DisplayName":
		source = fields.name
	case "Email":
		source = fields.email
	case "AvatarURL":
		source = strings.Join(fields.avatar, ".")
	}
	return &models.MalformedPayloadError{Provider: ci.Provider, Field: source, Reason: "failed " + fe.Tag() + " check"}
}
