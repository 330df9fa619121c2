package identitystore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratasocial/internal/app/system/resolver"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	"github.com/dalemusser/stratasocial/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newIdentity(p models.ProviderKind, pid, email string) models.StoredIdentity {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.StoredIdentity{
		Provider:    p,
		ProviderID:  pid,
		Email:       models.StringPtr(email),
		DisplayName: "User " + pid,
		CreatedAt:   now,
		LastLoginAt: now,
	}
}

func TestStore_CreateAndFind(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, newIdentity(models.ProviderGitHub, "12345", "john@x.com"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID.IsZero() {
		t.Error("Create() did not assign ID")
	}

	got, err := store.FindByProviderAndProviderID(ctx, models.ProviderGitHub, "12345")
	if err != nil {
		t.Fatalf("FindByProviderAndProviderID() error = %v", err)
	}
	if got == nil || got.ID != created.ID {
		t.Fatalf("FindByProviderAndProviderID() = %+v, want ID %v", got, created.ID)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created.CreatedAt)
	}

	missing, err := store.FindByProviderAndProviderID(ctx, models.ProviderGoogle, "12345")
	if err != nil {
		t.Fatalf("FindByProviderAndProviderID() error = %v", err)
	}
	if missing != nil {
		t.Errorf("FindByProviderAndProviderID(google) = %+v, want nil", missing)
	}
}

func TestStore_Create_DuplicateIsConflict(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, newIdentity(models.ProviderGitHub, "1", "a@x.com")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, err := store.Create(ctx, newIdentity(models.ProviderGitHub, "1", "b@x.com"))
	if !errors.Is(err, models.ErrPersistenceConflict) {
		t.Fatalf("Create() duplicate error = %v, want ErrPersistenceConflict", err)
	}
}

func TestStore_SameProviderIDAcrossProviders(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for _, p := range []models.ProviderKind{models.ProviderGitHub, models.ProviderFacebook} {
		if _, err := store.Create(ctx, newIdentity(p, "555", "same@x.com")); err != nil {
			t.Fatalf("Create(%s) error = %v", p, err)
		}
	}
	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	byEmail, err := store.ListByEmail(ctx, "same@x.com")
	if err != nil {
		t.Fatalf("ListByEmail() error = %v", err)
	}
	if len(byEmail) != 2 {
		t.Errorf("ListByEmail() returned %d, want 2", len(byEmail))
	}
}

func TestStore_NullEmailsDoNotCollide(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for _, pid := range []string{"a", "b", "c"} {
		if _, err := store.Create(ctx, newIdentity(models.ProviderGoogle, pid, "")); err != nil {
			t.Fatalf("Create(%s) error = %v", pid, err)
		}
	}
}

func TestStore_Update(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, newIdentity(models.ProviderGitHub, "9", "old@x.com"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	next := created
	next.Email = nil
	next.DisplayName = "Renamed"
	next.LastLoginAt = created.LastLoginAt.Add(time.Minute)
	if _, err := store.Update(ctx, next); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := store.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Email != nil {
		t.Errorf("Email = %q, want cleared", *got.Email)
	}
	if got.DisplayName != "Renamed" {
		t.Errorf("DisplayName = %q, want %q", got.DisplayName, "Renamed")
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", created.CreatedAt, got.CreatedAt)
	}
	if !got.LastLoginAt.Equal(next.LastLoginAt) {
		t.Errorf("LastLoginAt = %v, want %v", got.LastLoginAt, next.LastLoginAt)
	}

	next.ID = primitive.NewObjectID()
	if _, err := store.Update(ctx, next); !errors.Is(err, models.ErrIdentityNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrIdentityNotFound", err)
	}
}

func TestStore_StatsQueries(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, p := range []models.ProviderKind{models.ProviderGitHub, models.ProviderGitHub, models.ProviderGoogle} {
		si := newIdentity(p, string(rune('a'+i)), "")
		si.LastLoginAt = base.Add(time.Duration(i) * time.Minute)
		if _, err := store.Create(ctx, si); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	counts, err := store.CountByProvider(ctx)
	if err != nil {
		t.Fatalf("CountByProvider() error = %v", err)
	}
	want := map[models.ProviderKind]int64{models.ProviderGitHub: 2, models.ProviderGoogle: 1, models.ProviderFacebook: 0}
	for p, n := range want {
		if counts[p] != n {
			t.Errorf("CountByProvider()[%s] = %d, want %d", p, counts[p], n)
		}
	}

	recent, err := store.ListRecent(ctx, 2, 1)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(recent) != 2 || recent[0].ProviderID != "c" {
		t.Errorf("ListRecent() = %+v, want c first", recent)
	}

	exists, err := store.ExistsByProviderAndProviderID(ctx, models.ProviderGoogle, "c")
	if err != nil || !exists {
		t.Errorf("ExistsByProviderAndProviderID() = %v, %v, want true", exists, err)
	}
}

func TestStore_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.GetByID(ctx, primitive.NewObjectID()); !errors.Is(err, models.ErrIdentityNotFound) {
		t.Errorf("GetByID() error = %v, want ErrIdentityNotFound", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate", mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}, models.ErrPersistenceConflict},
		{"deadline", context.DeadlineExceeded, models.ErrPersistenceUnavailable},
		{"disconnected", mongo.ErrClientDisconnected, models.ErrPersistenceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify("op", tt.err); !errors.Is(got, tt.want) {
				t.Errorf("classify() = %v, want %v", got, tt.want)
			}
		})
	}
	if classify("op", nil) != nil {
		t.Error("classify(nil) should be nil")
	}
}

func TestStore_Update_OlderLastLoginIsIgnored(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, newIdentity(models.ProviderFacebook, "fb-1", ""))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	older := created
	older.DisplayName = "Renamed"
	older.LastLoginAt = created.LastLoginAt.Add(-time.Hour)

	got, err := store.Update(ctx, older)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !got.LastLoginAt.Equal(created.LastLoginAt) {
		t.Errorf("LastLoginAt = %v, want %v", got.LastLoginAt, created.LastLoginAt)
	}
	if got.DisplayName != "Renamed" {
		t.Errorf("DisplayName = %q, want %q", got.DisplayName, "Renamed")
	}
}

// pausingStore runs during once, right after the first lookup returns.
type pausingStore struct {
	*Store
	once   sync.Once
	during func()
}

func (p *pausingStore) FindByProviderAndProviderID(ctx context.Context, provider models.ProviderKind, providerID string) (*models.StoredIdentity, error) {
	si, err := p.Store.FindByProviderAndProviderID(ctx, provider, providerID)
	p.once.Do(func() {
		if p.during != nil {
			p.during()
		}
	})
	return si, err
}

func TestStore_OverlappingLoginsKeepLatestLastLogin(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ci := models.CanonicalIdentity{
		Provider:    models.ProviderGoogle,
		ProviderID:  "g-overlap",
		DisplayName: "Overlap",
	}

	seed := resolver.New(store, zap.NewNop())
	seed.SetClock(func() time.Time { return t0 })
	if _, err := seed.Resolve(ctx, ci); err != nil {
		t.Fatalf("seed Resolve() error = %v", err)
	}

	later := resolver.New(store, zap.NewNop())
	later.SetClock(func() time.Time { return t0.Add(2 * time.Minute) })

	wrapped := &pausingStore{Store: store}
	wrapped.during = func() {
		if _, err := later.Resolve(ctx, ci); err != nil {
			t.Errorf("later Resolve() error = %v", err)
		}
	}
	earlier := resolver.New(wrapped, zap.NewNop())
	earlier.SetClock(func() time.Time { return t0.Add(time.Minute) })

	got, err := earlier.Resolve(ctx, ci)
	if err != nil {
		t.Fatalf("earlier Resolve() error = %v", err)
	}
	want := t0.Add(2 * time.Minute)
	if !got.LastLoginAt.Equal(want) {
		t.Errorf("returned LastLoginAt = %v, want %v", got.LastLoginAt, want)
	}
	stored, err := store.GetByID(ctx, got.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !stored.LastLoginAt.Equal(want) {
		t.Errorf("stored LastLoginAt = %v, want %v", stored.LastLoginAt, want)
	}
}
