// internal/app/features/stats/handler.go
package statsfeature

import (
	"context"
	"errors"
	"net/http"
	"time"

	errorsfeature "github.com/dalemusser/stratasocial/internal/app/features/errors"
	"github.com/dalemusser/stratasocial/internal/app/system/jsonutil"
	"github.com/dalemusser/stratasocial/internal/app/system/timeouts"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	"go.uber.org/zap"
)

// IdentityCounter is implemented by both identity stores.
type IdentityCounter interface {
	Count(ctx context.Context) (int64, error)
	CountByProvider(ctx context.Context) (map[models.ProviderKind]int64, error)
}

// LoginCounter counts login records per provider.
type LoginCounter interface {
	CountSince(ctx context.Context, since time.Time) (map[models.ProviderKind]int64, error)
}

// Handler handles statistics HTTP requests.
type Handler struct {
	Identities IdentityCounter
	Logins     LoginCounter // optional
	ErrLog     *errorsfeature.ErrorLogger
	Log        *zap.Logger

	now func() time.Time
}

// NewHandler creates a new stats handler.
func NewHandler(identities IdentityCounter, logins LoginCounter, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errLog == nil {
		errLog = errorsfeature.NewErrorLogger(logger)
	}
	return &Handler{
		Identities: identities,
		Logins:     logins,
		ErrLog:     errLog,
		Log:        logger,
		now:        time.Now,
	}
}

// ServeIdentities handles GET /stats/identities.
//
// ?period=day|week|month adds a login count over that window. Without it
// only identity totals are returned.
func (h *Handler) ServeIdentities(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	var since time.Time
	period := r.URL.Query().Get("period")
	if period != "" {
		var ok bool
		if since, ok = periodStart(h.now(), period); !ok {
			jsonutil.BadRequest(w, "invalid_period")
			return
		}
	}

	total, err := h.Identities.Count(ctx)
	if err != nil {
		h.storeError(w, r, "failed to count identities", err)
		return
	}
	byProvider, err := h.Identities.CountByProvider(ctx)
	if err != nil {
		h.storeError(w, r, "failed to count identities by provider", err)
		return
	}

	out := IdentityStats{Total: total, ByProvider: rows(byProvider)}

	if period != "" && h.Logins != nil {
		counts, err := h.Logins.CountSince(ctx, since)
		if err != nil {
			h.storeError(w, r, "failed to count logins", err)
			return
		}
		window := &LoginWindow{Period: period, Since: since, ByProvider: rows(counts)}
		for _, c := range window.ByProvider {
			window.Total += c.Count
		}
		out.Logins = window
	}

	jsonutil.OK(w, out)
}

// periodStart returns the start of the window ending at now.
func periodStart(now time.Time, period string) (time.Time, bool) {
	now = now.UTC()
	switch period {
	case "day":
		return now.AddDate(0, 0, -1), true
	case "week":
		return now.AddDate(0, 0, -7), true
	case "month":
		return now.AddDate(0, -1, 0), true
	default:
		return time.Time{}, false
	}
}

// rows orders counts as models.AllProviders and fills missing providers
// with zero.
func rows(counts map[models.ProviderKind]int64) []ProviderCount {
	out := make([]ProviderCount, 0, len(models.AllProviders))
	for _, p := range models.AllProviders {
		out = append(out, ProviderCount{Provider: string(p.Value), Label: p.Label, Count: counts[p.Value]})
	}
	return out
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.ErrLog.Log(r, msg, err)
	if errors.Is(err, models.ErrPersistenceUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		jsonutil.Unavailable(w, "store_unavailable")
		return
	}
	jsonutil.InternalError(w, "internal_error")
}
