// internal/app/store/sqlitestore/identities.go
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dalemusser/stratasocial/internal/app/store/storeutil"
	"github.com/dalemusser/stratasocial/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Identifiers are ObjectID hex strings so that both backends hand out the
// same id shape to sessions and the HTTP surface.

const identityColumns = `id, provider, provider_id, email, display_name, avatar_url, created_at, last_login_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (models.StoredIdentity, error) {
	var (
		si        models.StoredIdentity
		id        string
		provider  string
		email     sql.NullString
		avatar    sql.NullString
		createdAt int64
		lastLogin int64
	)
	if err := row.Scan(&id, &provider, &si.ProviderID, &email, &si.DisplayName, &avatar, &createdAt, &lastLogin); err != nil {
		return models.StoredIdentity{}, err
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.StoredIdentity{}, fmt.Errorf("decode identity id %q: %w", id, err)
	}
	si.ID = oid
	si.Provider = models.ProviderKind(provider)
	if email.Valid {
		si.Email = models.StringPtr(email.String)
	}
	if avatar.Valid {
		si.AvatarURL = models.StringPtr(avatar.String)
	}
	si.CreatedAt = fromMillis(createdAt)
	si.LastLoginAt = fromMillis(lastLogin)
	return si, nil
}

func nullable(p *string) sql.NullString {
	if p == nil || *p == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// FindByProviderAndProviderID returns the identity for the composite key,
// or (nil, nil) when none exists.
func (s *Store) FindByProviderAndProviderID(ctx context.Context, provider models.ProviderKind, providerID string) (*models.StoredIdentity, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE provider = ? AND provider_id = ?`,
		string(provider), providerID,
	)
	si, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find identity", err)
	}
	return &si, nil
}

// Create inserts a new identity. A duplicate (provider, provider_id) fails
// with models.ErrPersistenceConflict.
func (s *Store) Create(ctx context.Context, si models.StoredIdentity) (models.StoredIdentity, error) {
	si.ID = primitive.NewObjectID()
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO identities (`+identityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		si.ID.Hex(), string(si.Provider), si.ProviderID,
		nullable(si.Email), si.DisplayName, nullable(si.AvatarURL),
		toMillis(si.CreatedAt), toMillis(si.LastLoginAt),
	)
	if err != nil {
		return models.StoredIdentity{}, classify("insert identity", err)
	}
	return si, nil
}

// Update overwrites the mutable fields of an existing identity. Nil email
// or avatar clears the stored value. last_login_at only moves forward; the
// returned identity carries the stored value.
func (s *Store) Update(ctx context.Context, si models.StoredIdentity) (models.StoredIdentity, error) {
	var lastLogin int64
	err := s.sqlDB.QueryRowContext(ctx,
		`UPDATE identities
		    SET email = ?, display_name = ?, avatar_url = ?, last_login_at = MAX(last_login_at, ?)
		  WHERE id = ?
		RETURNING last_login_at`,
		nullable(si.Email), si.DisplayName, nullable(si.AvatarURL), toMillis(si.LastLoginAt), si.ID.Hex(),
	).Scan(&lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredIdentity{}, models.ErrIdentityNotFound
	}
	if err != nil {
		return models.StoredIdentity{}, classify("update identity", err)
	}
	si.LastLoginAt = fromMillis(lastLogin)
	return si, nil
}

// GetByID loads an identity by id. Returns models.ErrIdentityNotFound when
// missing.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.StoredIdentity, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = ?`, id.Hex())
	si, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrIdentityNotFound
	}
	if err != nil {
		return nil, classify("get identity", err)
	}
	return &si, nil
}

// ExistsByProviderAndProviderID reports whether the composite key is taken.
func (s *Store) ExistsByProviderAndProviderID(ctx context.Context, provider models.ProviderKind, providerID string) (bool, error) {
	var exists int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM identities WHERE provider = ? AND provider_id = ?)`,
		string(provider), providerID,
	).Scan(&exists)
	if err != nil {
		return false, classify("count identity", err)
	}
	return exists == 1, nil
}

// ListByEmail returns every identity carrying email, across providers.
func (s *Store) ListByEmail(ctx context.Context, email string) ([]models.StoredIdentity, error) {
	if email == "" {
		return nil, nil
	}
	return s.list(ctx, "list identities by email",
		`SELECT `+identityColumns+` FROM identities WHERE email = ? ORDER BY provider ASC, created_at ASC`,
		email,
	)
}

// Count returns the total number of identities.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&n); err != nil {
		return 0, classify("count identities", err)
	}
	return n, nil
}

// CountByProvider returns identity counts keyed by provider. Providers with
// no identities are present with a zero count.
func (s *Store) CountByProvider(ctx context.Context) (map[models.ProviderKind]int64, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT provider, COUNT(*) FROM identities GROUP BY provider`)
	if err != nil {
		return nil, classify("count identities by provider", err)
	}
	defer rows.Close()

	out := make(map[models.ProviderKind]int64, len(models.AllProviders))
	for _, p := range models.AllProviders {
		out[p.Value] = 0
	}
	for rows.Next() {
		var (
			provider string
			n        int64
		)
		if err := rows.Scan(&provider, &n); err != nil {
			return nil, classify("scan provider counts", err)
		}
		out[models.ProviderKind(provider)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, classify("count identities by provider", err)
	}
	return out, nil
}

// ListRecent returns identities ordered by most recent login, 1-based page.
func (s *Store) ListRecent(ctx context.Context, limit, page int64) ([]models.StoredIdentity, error) {
	limit, skip := storeutil.PageBounds(limit, page)
	return s.list(ctx, "list recent identities",
		`SELECT `+identityColumns+` FROM identities ORDER BY last_login_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, skip,
	)
}

func (s *Store) list(ctx context.Context, op, query string, args ...any) ([]models.StoredIdentity, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []models.StoredIdentity
	for rows.Next() {
		si, err := scanIdentity(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, si)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}
