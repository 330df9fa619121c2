// Package resolver maps a canonical identity to exactly one stored identity,
// creating it on first login and refreshing it on every later login.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/stratasocial/internal/app/system/metrics"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	"go.uber.org/zap"
)

// Store is the persistence the resolver needs. Implementations enforce
// uniqueness of (provider, providerID) and report a violation by wrapping
// models.ErrPersistenceConflict.
type Store interface {
	// FindByProviderAndProviderID returns (nil, nil) when no record exists.
	FindByProviderAndProviderID(ctx context.Context, provider models.ProviderKind, providerID string) (*models.StoredIdentity, error)
	// Create inserts a new record and returns it with its assigned ID.
	Create(ctx context.Context, identity models.StoredIdentity) (models.StoredIdentity, error)
	// Update replaces the mutable fields of an existing record.
	Update(ctx context.Context, identity models.StoredIdentity) (models.StoredIdentity, error)
}

// Resolution is the result of one resolve call.
type Resolution struct {
	Identity models.StoredIdentity
	Created  bool // a new record was inserted
	Retried  bool // the first create hit a uniqueness conflict
}

// Resolver implements find-or-create with a single read-after-conflict retry.
// It holds no locks; the store's uniqueness constraint is the only point of
// serialization between concurrent logins.
type Resolver struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

// New creates a Resolver over store.
func New(store Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// SetMetrics attaches a metrics recorder. nil disables recording.
func (r *Resolver) SetMetrics(m *metrics.Recorder) {
	r.metrics = m
}

// SetClock replaces the time source. Used by tests.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Resolve returns the stored identity for ci, creating or updating it.
func (r *Resolver) Resolve(ctx context.Context, ci models.CanonicalIdentity) (models.StoredIdentity, error) {
	res, err := r.ResolveOutcome(ctx, ci)
	if err != nil {
		return models.StoredIdentity{}, err
	}
	return res.Identity, nil
}

// ResolveOutcome is Resolve that also reports whether the record was created
// and whether a conflict retry happened.
//
// A uniqueness conflict on create means a concurrent login for the same
// account won the insert; the whole find/update path runs once more. A second
// conflict is returned wrapping both models.ErrConflictUnresolved and
// models.ErrPersistenceConflict. Any other store error is returned as is.
func (r *Resolver) ResolveOutcome(ctx context.Context, ci models.CanonicalIdentity) (Resolution, error) {
	if !ci.Provider.IsValid() {
		return Resolution{}, &models.UnsupportedProviderError{Provider: string(ci.Provider)}
	}
	if strings.TrimSpace(ci.ProviderID) == "" {
		return Resolution{}, &models.MalformedPayloadError{Provider: ci.Provider, Field: "providerId", Reason: "is empty"}
	}

	start := time.Now()
	provider := string(ci.Provider)

	res, createConflict, err := r.attempt(ctx, ci)
	if createConflict {
		r.logger.Info("identity create conflict, retrying",
			zap.String("provider", provider),
			zap.String("provider_id", ci.ProviderID))
		r.metrics.ConflictRetry(provider)

		res, createConflict, err = r.attempt(ctx, ci)
		res.Retried = true
		if createConflict {
			err = fmt.Errorf("%w: %s/%s: %w", models.ErrConflictUnresolved, provider, ci.ProviderID, err)
		}
	}

	if err != nil {
		r.logger.Warn("identity resolution failed",
			zap.String("provider", provider),
			zap.String("provider_id", ci.ProviderID),
			zap.Error(err))
		r.metrics.Login(provider, metrics.OutcomeError, time.Since(start))
		return Resolution{}, err
	}

	outcome := metrics.OutcomeUpdated
	if res.Created {
		outcome = metrics.OutcomeCreated
	}
	r.metrics.Login(provider, outcome, time.Since(start))
	r.logger.Debug("identity resolved",
		zap.String("provider", provider),
		zap.String("identity_id", res.Identity.ID.Hex()),
		zap.Bool("created", res.Created),
		zap.Bool("retried", res.Retried))
	return res, nil
}

// attempt runs one find-then-create-or-update pass. createConflict is true
// only when Create failed with a uniqueness violation.
func (r *Resolver) attempt(ctx context.Context, ci models.CanonicalIdentity) (res Resolution, createConflict bool, err error) {
	existing, err := r.store.FindByProviderAndProviderID(ctx, ci.Provider, ci.ProviderID)
	if err != nil {
		return Resolution{}, false, err
	}

	// Stores keep millisecond precision; truncate so the returned record
	// matches what a later read sees.
	now := r.now().UTC().Truncate(time.Millisecond)

	if existing == nil {
		created, err := r.store.Create(ctx, models.StoredIdentity{
			Provider:    ci.Provider,
			ProviderID:  ci.ProviderID,
			Email:       ci.Email,
			DisplayName: ci.DisplayName,
			AvatarURL:   ci.AvatarURL,
			CreatedAt:   now,
			LastLoginAt: now,
		})
		if err != nil {
			return Resolution{}, errors.Is(err, models.ErrPersistenceConflict), err
		}
		return Resolution{Identity: created, Created: true}, false, nil
	}

	next := *existing
	next.Email = ci.Email
	next.DisplayName = ci.DisplayName
	next.AvatarURL = ci.AvatarURL
	if now.After(existing.LastLoginAt) {
		next.LastLoginAt = now
	}

	updated, err := r.store.Update(ctx, next)
	if err != nil {
		return Resolution{}, false, err
	}
	return Resolution{Identity: updated}, false, nil
}
