// Package htmlsanitize strips markup from provider-supplied text before it
// reaches a view. Provider profiles are untrusted: a display name or any
// raw attribute may carry HTML.
package htmlsanitize

import (
	"sync"

	"github.com/dalemusser/stratasocial/internal/domain/models"
	"github.com/microcosm-cc/bluemonday"
)

var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared strict policy: no elements survive, text is
// HTML-escaped.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Text removes all markup from s.
func Text(s string) string {
	if s == "" {
		return ""
	}
	return getPolicy().Sanitize(s)
}

// Attributes returns a copy of attrs with every key and string leaf passed
// through Text. Order and non-string values are preserved.
func Attributes(attrs models.Attributes) models.Attributes {
	pairs := make([]models.Attr, 0, attrs.Len())
	attrs.Each(func(key string, v models.Value) {
		pairs = append(pairs, models.Attr{Key: Text(key), Value: value(v)})
	})
	return models.NewAttributes(pairs...)
}

func value(v models.Value) models.Value {
	switch v.Kind() {
	case models.KindString:
		s, _ := v.AsString()
		return models.StringValue(Text(s))
	case models.KindMap:
		m, _ := v.AsMap()
		return models.MapValue(Attributes(m))
	case models.KindList:
		items, _ := v.AsList()
		out := make([]models.Value, len(items))
		for i, item := range items {
			out[i] = value(item)
		}
		return models.ListValue(out...)
	default:
		return v
	}
}
