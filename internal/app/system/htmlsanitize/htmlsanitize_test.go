package htmlsanitize

import (
	"testing"

	"github.com/dalemusser/stratasocial/internal/domain/models"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "Jane Doe", "Jane Doe"},
		{"bold", "<b>Jane</b>", "Jane"},
		{"script", `<script>alert(1)</script>Jane`, "Jane"},
		{"image", `<img src=x onerror=alert(1)>Jane`, "Jane"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAttributes(t *testing.T) {
	raw, err := models.ParseAttributes([]byte(`{"id":7,"name":"<i>Jane</i>","picture":{"data":{"url":"https://x/y.jpg"}},"tags":["<b>a</b>",true],"bio":null}`))
	if err != nil {
		t.Fatalf("ParseAttributes() error = %v", err)
	}

	got := Attributes(raw)

	if keys := got.Keys(); len(keys) != 5 || keys[0] != "id" || keys[4] != "bio" {
		t.Errorf("Keys() = %v", keys)
	}
	if v, _ := got.Get("name"); !v.Equal(models.StringValue("Jane")) {
		t.Errorf("name = %v", v)
	}
	if v, _ := got.Lookup("picture", "data", "url"); !v.Equal(models.StringValue("https://x/y.jpg")) {
		t.Errorf("picture.data.url = %v", v)
	}
	tags, _ := got.Get("tags")
	if !tags.Equal(models.ListValue(models.StringValue("a"), models.BoolValue(true))) {
		t.Errorf("tags = %v", tags)
	}
	if id, _ := got.Get("id"); id.Kind() != models.KindNumber {
		t.Errorf("id kind = %v, want number", id.Kind())
	}
	if bio, _ := got.Get("bio"); !bio.IsNull() {
		t.Errorf("bio = %v, want null", bio)
	}
}
