package identitystore

import (
	"context"
	"errors"
	"testing"

	"github.com/dalemusser/stratasocial/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type mapGetter map[primitive.ObjectID]models.StoredIdentity

func (m mapGetter) GetByID(_ context.Context, id primitive.ObjectID) (*models.StoredIdentity, error) {
	si, ok := m[id]
	if !ok {
		return nil, models.ErrIdentityNotFound
	}
	return &si, nil
}

type errGetter struct{ err error }

func (e errGetter) GetByID(context.Context, primitive.ObjectID) (*models.StoredIdentity, error) {
	return nil, e.err
}

func TestFetcher_FetchIdentity(t *testing.T) {
	id := primitive.NewObjectID()
	store := mapGetter{id: {
		ID:          id,
		Provider:    models.ProviderGoogle,
		ProviderID:  "g-1",
		DisplayName: "Jane",
		Email:       models.StringPtr("jane@x.com"),
		AvatarURL:   models.StringPtr("https://x/p.jpg"),
	}}
	f := NewFetcher(store, zap.NewNop())

	u := f.FetchIdentity(context.Background(), id.Hex())
	if u == nil {
		t.Fatal("FetchIdentity() = nil, want user")
	}
	if u.ID != id.Hex() || u.Name != "Jane" || u.Email != "jane@x.com" || u.AvatarURL != "https://x/p.jpg" {
		t.Errorf("FetchIdentity() = %+v", u)
	}

	tests := []struct {
		name string
		f    *Fetcher
		id   string
	}{
		{"invalid hex", f, "nope"},
		{"missing", f, primitive.NewObjectID().Hex()},
		{"store error", NewFetcher(errGetter{errors.New("boom")}, zap.NewNop()), id.Hex()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if u := tt.f.FetchIdentity(context.Background(), tt.id); u != nil {
				t.Errorf("FetchIdentity() = %+v, want nil", u)
			}
		})
	}
}
