// Package metrics exposes prometheus collectors for the login flow.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "stratasocial"

// Resolve outcomes used as the "outcome" label of logins_total.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeError   = "error"
)

// Recorder holds the login collectors. A nil *Recorder records nothing.
type Recorder struct {
	logins          *prometheus.CounterVec
	conflictRetries *prometheus.CounterVec
	normalizeFails  *prometheus.CounterVec
	callbackErrors  *prometheus.CounterVec
	resolveDuration *prometheus.HistogramVec
}

var (
	defaultOnce sync.Once
	defaultRec  *Recorder
)

// Default returns the Recorder registered on the default prometheus registry.
func Default() *Recorder {
	defaultOnce.Do(func() {
		defaultRec = New(prometheus.DefaultRegisterer)
	})
	return defaultRec
}

// New builds a Recorder and registers it on reg. Collectors that are already
// registered are reused.
func New(reg prometheus.Registerer) *Recorder {
	return &Recorder{
		logins: registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "logins_total",
			Help:      "Identity resolutions by provider and outcome.",
		}, []string{"provider", "outcome"})),

		conflictRetries: registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "conflict_retries_total",
			Help:      "Create conflicts that triggered a read-after-conflict retry.",
		}, []string{"provider"})),

		normalizeFails: registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "normalize_failures_total",
			Help:      "Provider payloads rejected by the normalizer.",
		}, []string{"provider", "reason"})),

		callbackErrors: registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oauth",
			Name:      "callback_errors_total",
			Help:      "OAuth callbacks that ended in an error redirect.",
		}, []string{"provider", "code"})),

		resolveDuration: registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "resolve_duration_seconds",
			Help:      "Duration of identity resolution including store round trips.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"})),
	}
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		zap.L().Warn("prometheus counter register failed", zap.Error(err))
	}
	return c
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := reg.Register(h); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
		zap.L().Warn("prometheus histogram register failed", zap.Error(err))
	}
	return h
}

// Login records one resolution outcome and its duration.
func (r *Recorder) Login(provider, outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.logins.WithLabelValues(provider, outcome).Inc()
	r.resolveDuration.WithLabelValues(provider).Observe(took.Seconds())
}

// ConflictRetry records a create conflict that is being retried.
func (r *Recorder) ConflictRetry(provider string) {
	if r == nil {
		return
	}
	r.conflictRetries.WithLabelValues(provider).Inc()
}

// NormalizeFailure records a rejected payload. reason is a short code such
// as "malformed" or "unsupported".
func (r *Recorder) NormalizeFailure(provider, reason string) {
	if r == nil {
		return
	}
	r.normalizeFails.WithLabelValues(provider, reason).Inc()
}

// CallbackError records an OAuth callback that redirected with an error code.
func (r *Recorder) CallbackError(provider, code string) {
	if r == nil {
		return
	}
	r.callbackErrors.WithLabelValues(provider, code).Inc()
}

// Handler serves the default registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
