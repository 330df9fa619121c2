package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratasocial/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// memStore is an in-memory Store with a uniqueness constraint on
// (provider, providerID).
type memStore struct {
	mu      sync.Mutex
	rows    map[models.IdentityKey]models.StoredIdentity
	finds   int
	creates int
	updates int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[models.IdentityKey]models.StoredIdentity)}
}

func (s *memStore) FindByProviderAndProviderID(_ context.Context, p models.ProviderKind, pid string) (*models.StoredIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	row, ok := s.rows[models.IdentityKey{Provider: p, ProviderID: pid}]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *memStore) Create(_ context.Context, si models.StoredIdentity) (models.StoredIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if _, ok := s.rows[si.Key()]; ok {
		return models.StoredIdentity{}, fmt.Errorf("insert identity: %w", models.ErrPersistenceConflict)
	}
	si.ID = primitive.NewObjectID()
	s.rows[si.Key()] = si
	return si, nil
}

func (s *memStore) Update(_ context.Context, si models.StoredIdentity) (models.StoredIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	cur, ok := s.rows[si.Key()]
	if !ok || cur.ID != si.ID {
		return models.StoredIdentity{}, models.ErrIdentityNotFound
	}
	s.rows[si.Key()] = si
	return si, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// fakeClock returns successive times one second apart starting at start.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
	inc time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.cur
	c.cur = c.cur.Add(c.inc)
	return t
}

func newResolver(store Store) (*Resolver, *fakeClock) {
	clock := &fakeClock{cur: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), inc: time.Second}
	r := New(store, zap.NewNop())
	r.SetClock(clock.Now)
	return r, clock
}

func githubIdentity(id, email string) models.CanonicalIdentity {
	return models.CanonicalIdentity{
		Provider:    models.ProviderGitHub,
		ProviderID:  id,
		DisplayName: "John Doe",
		Email:       models.StringPtr(email),
		AvatarURL:   models.StringPtr("https://avatars.example.com/u/" + id),
	}
}

func TestResolve_FirstLoginCreates(t *testing.T) {
	store := newMemStore()
	r, _ := newResolver(store)

	res, err := r.ResolveOutcome(context.Background(), githubIdentity("12345", "john@x.com"))
	if err != nil {
		t.Fatalf("ResolveOutcome() error = %v", err)
	}
	if !res.Created || res.Retried {
		t.Errorf("Created = %v, Retried = %v, want true, false", res.Created, res.Retried)
	}
	got := res.Identity
	if got.ID.IsZero() {
		t.Error("ID should be assigned")
	}
	if !got.CreatedAt.Equal(got.LastLoginAt) {
		t.Errorf("CreatedAt = %v, LastLoginAt = %v, want equal", got.CreatedAt, got.LastLoginAt)
	}
	if got.EmailValue() != "john@x.com" || got.DisplayName != "John Doe" {
		t.Errorf("got %+v", got)
	}
	if store.count() != 1 {
		t.Errorf("rows = %d, want 1", store.count())
	}
}

func TestResolve_SecondLoginUpdates(t *testing.T) {
	store := newMemStore()
	r, _ := newResolver(store)
	ctx := context.Background()

	first, err := r.Resolve(ctx, githubIdentity("12345", "old@x.com"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	res, err := r.ResolveOutcome(ctx, githubIdentity("12345", "new@x.com"))
	if err != nil {
		t.Fatalf("ResolveOutcome() error = %v", err)
	}
	second := res.Identity

	if res.Created {
		t.Error("second login should not create")
	}
	if second.ID != first.ID {
		t.Errorf("ID = %v, want %v", second.ID, first.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", second.CreatedAt, first.CreatedAt)
	}
	if second.EmailValue() != "new@x.com" {
		t.Errorf("Email = %q, want %q", second.EmailValue(), "new@x.com")
	}
	if !second.LastLoginAt.After(first.LastLoginAt) {
		t.Errorf("LastLoginAt = %v, want after %v", second.LastLoginAt, first.LastLoginAt)
	}
	if store.count() != 1 {
		t.Errorf("rows = %d, want 1", store.count())
	}
}

func TestResolve_UpdateOverwritesWithAbsentValues(t *testing.T) {
	store := newMemStore()
	r, _ := newResolver(store)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, githubIdentity("1", "a@x.com")); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	bare := models.CanonicalIdentity{Provider: models.ProviderGitHub, ProviderID: "1"}
	got, err := r.Resolve(ctx, bare)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
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

func TestResolve_LastLoginNeverMovesBackwards(t *testing.T) {
	store := newMemStore()
	r, clock := newResolver(store)
	ctx := context.Background()

	first, err := r.Resolve(ctx, githubIdentity("1", "a@x.com"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	clock.mu.Lock()
	clock.cur = first.LastLoginAt.Add(-time.Hour)
	clock.mu.Unlock()

	second, err := r.Resolve(ctx, githubIdentity("1", "a@x.com"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if second.LastLoginAt.Before(first.LastLoginAt) {
		t.Errorf("LastLoginAt = %v, moved before %v", second.LastLoginAt, first.LastLoginAt)
	}
}

func TestResolve_SameProviderIDDifferentProvider(t *testing.T) {
	store := newMemStore()
	r, _ := newResolver(store)
	ctx := context.Background()

	gh, err := r.Resolve(ctx, githubIdentity("555", "same@x.com"))
	if err != nil {
		t.Fatalf("Resolve(github) error = %v", err)
	}
	fb, err := r.Resolve(ctx, models.CanonicalIdentity{
		Provider:   models.ProviderFacebook,
		ProviderID: "555",
		Email:      models.StringPtr("same@x.com"),
	})
	if err != nil {
		t.Fatalf("Resolve(facebook) error = %v", err)
	}
	if gh.ID == fb.ID {
		t.Error("different providers must yield different identities")
	}
	if store.count() != 2 {
		t.Errorf("rows = %d, want 2", store.count())
	}
}

func TestResolve_UnsupportedProviderSkipsStore(t *testing.T) {
	store := newMemStore()
	r, _ := newResolver(store)

	_, err := r.Resolve(context.Background(), models.CanonicalIdentity{Provider: "myspace", ProviderID: "1"})
	var upe *models.UnsupportedProviderError
	if !errors.As(err, &upe) {
		t.Fatalf("Resolve() error = %v, want UnsupportedProviderError", err)
	}
	if store.finds+store.creates+store.updates != 0 {
		t.Errorf("store was accessed: finds=%d creates=%d updates=%d", store.finds, store.creates, store.updates)
	}
}

func TestResolve_EmptyProviderIDRejected(t *testing.T) {
	store := newMemStore()
	r, _ := newResolver(store)

	_, err := r.Resolve(context.Background(), models.CanonicalIdentity{Provider: models.ProviderGoogle, ProviderID: " "})
	var mpe *models.MalformedPayloadError
	if !errors.As(err, &mpe) {
		t.Fatalf("Resolve() error = %v, want MalformedPayloadError", err)
	}
	if store.finds != 0 {
		t.Errorf("finds = %d, want 0", store.finds)
	}
}

// conflictStore reports a conflict on the first n creates. When insertOnConflict
// is set, the conflicting create also inserts the row, as a concurrent winner would.
type conflictStore struct {
	*memStore
	conflicts        int
	insertOnConflict bool
}

func (s *conflictStore) Create(ctx context.Context, si models.StoredIdentity) (models.StoredIdentity, error) {
	if s.conflicts > 0 {
		s.conflicts--
		if s.insertOnConflict {
			if _, err := s.memStore.Create(ctx, si); err != nil {
				return models.StoredIdentity{}, err
			}
		} else {
			s.memStore.mu.Lock()
			s.memStore.creates++
			s.memStore.mu.Unlock()
		}
		return models.StoredIdentity{}, fmt.Errorf("insert identity: %w", models.ErrPersistenceConflict)
	}
	return s.memStore.Create(ctx, si)
}

func TestResolve_ConflictRetriedOnce(t *testing.T) {
	store := &conflictStore{memStore: newMemStore(), conflicts: 1, insertOnConflict: true}
	r, _ := newResolver(store)

	res, err := r.ResolveOutcome(context.Background(), githubIdentity("777", "a@x.com"))
	if err != nil {
		t.Fatalf("ResolveOutcome() error = %v", err)
	}
	if !res.Retried {
		t.Error("Retried = false, want true")
	}
	if res.Created {
		t.Error("Created = true, want false (the concurrent winner created it)")
	}
	if store.finds != 2 {
		t.Errorf("finds = %d, want 2", store.finds)
	}
	if store.count() != 1 {
		t.Errorf("rows = %d, want 1", store.count())
	}
}

func TestResolve_SecondConflictIsFatal(t *testing.T) {
	store := &conflictStore{memStore: newMemStore(), conflicts: 2}
	r, _ := newResolver(store)

	_, err := r.Resolve(context.Background(), githubIdentity("888", "a@x.com"))
	if !errors.Is(err, models.ErrConflictUnresolved) {
		t.Fatalf("Resolve() error = %v, want ErrConflictUnresolved", err)
	}
	if !errors.Is(err, models.ErrPersistenceConflict) {
		t.Errorf("Resolve() error = %v, want it to wrap ErrPersistenceConflict", err)
	}
	if store.creates != 2 {
		t.Errorf("creates = %d, want 2 (one retry only)", store.creates)
	}
}

// failingStore returns err from the selected operation.
type failingStore struct {
	*memStore
	findErr   error
	createErr error
	updateErr error
}

func (s *failingStore) FindByProviderAndProviderID(ctx context.Context, p models.ProviderKind, pid string) (*models.StoredIdentity, error) {
	if s.findErr != nil {
		s.memStore.finds++
		return nil, s.findErr
	}
	return s.memStore.FindByProviderAndProviderID(ctx, p, pid)
}

func (s *failingStore) Create(ctx context.Context, si models.StoredIdentity) (models.StoredIdentity, error) {
	if s.createErr != nil {
		s.memStore.creates++
		return models.StoredIdentity{}, s.createErr
	}
	return s.memStore.Create(ctx, si)
}

func (s *failingStore) Update(ctx context.Context, si models.StoredIdentity) (models.StoredIdentity, error) {
	if s.updateErr != nil {
		s.memStore.updates++
		return models.StoredIdentity{}, s.updateErr
	}
	return s.memStore.Update(ctx, si)
}

func TestResolve_OtherErrorsNotRetried(t *testing.T) {
	unavailable := fmt.Errorf("find identity: %w", models.ErrPersistenceUnavailable)

	tests := []struct {
		name  string
		store *failingStore
		seed  bool
		want  error
	}{
		{"find unavailable", &failingStore{memStore: newMemStore(), findErr: unavailable}, false, models.ErrPersistenceUnavailable},
		{"create unavailable", &failingStore{memStore: newMemStore(), createErr: unavailable}, false, models.ErrPersistenceUnavailable},
		{"update not found", &failingStore{memStore: newMemStore(), updateErr: models.ErrIdentityNotFound}, true, models.ErrIdentityNotFound},
		{"update conflict", &failingStore{memStore: newMemStore(), updateErr: models.ErrPersistenceConflict}, true, models.ErrPersistenceConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.seed {
				if _, err := tt.store.memStore.Create(context.Background(), models.StoredIdentity{Provider: models.ProviderGitHub, ProviderID: "9"}); err != nil {
					t.Fatalf("seed error = %v", err)
				}
				tt.store.memStore.creates = 0
			}
			r, _ := newResolver(tt.store)

			_, err := r.Resolve(context.Background(), githubIdentity("9", "a@x.com"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Resolve() error = %v, want %v", err, tt.want)
			}
			if errors.Is(err, models.ErrConflictUnresolved) {
				t.Error("non-create errors must not be reported as unresolved conflicts")
			}
			if tt.store.finds != 1 {
				t.Errorf("finds = %d, want 1 (no retry)", tt.store.finds)
			}
		})
	}
}

// racingStore holds the first two finds until both have observed the empty
// store, forcing both callers into Create.
type racingStore struct {
	*memStore
	gate  sync.WaitGroup
	mu    sync.Mutex
	calls int
}

func (s *racingStore) FindByProviderAndProviderID(ctx context.Context, p models.ProviderKind, pid string) (*models.StoredIdentity, error) {
	row, err := s.memStore.FindByProviderAndProviderID(ctx, p, pid)

	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()

	if n <= 2 {
		s.gate.Done()
		s.gate.Wait()
	}
	return row, err
}

func TestResolve_ConcurrentFirstLogin(t *testing.T) {
	store := &racingStore{memStore: newMemStore()}
	store.gate.Add(2)
	r, _ := newResolver(store)

	var (
		wg      sync.WaitGroup
		results [2]Resolution
		errs    [2]error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.ResolveOutcome(context.Background(), githubIdentity("4242", "race@x.com"))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d error = %v", i, err)
		}
	}
	if store.count() != 1 {
		t.Fatalf("rows = %d, want 1", store.count())
	}
	if results[0].Identity.ID != results[1].Identity.ID {
		t.Errorf("IDs differ: %v vs %v", results[0].Identity.ID, results[1].Identity.ID)
	}
	created := 0
	retried := 0
	for _, res := range results {
		if res.Created {
			created++
		}
		if res.Retried {
			retried++
		}
	}
	if created != 1 || retried != 1 {
		t.Errorf("created = %d, retried = %d, want 1 and 1", created, retried)
	}
}
