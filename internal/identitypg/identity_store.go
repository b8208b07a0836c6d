package identitypg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tyemirov/tasktrack/internal/authkit"
)

const uniqueViolationCode = "23505"

// PostgresIdentityStore persists identities in PostgreSQL through pgx.
type PostgresIdentityStore struct {
	pool *pgxpool.Pool
}

// NewPostgresIdentityStore constructs a Postgres store.
func NewPostgresIdentityStore(pool *pgxpool.Pool) *PostgresIdentityStore {
	return &PostgresIdentityStore{pool: pool}
}

// FindIdentityByEmail loads the identity registered under email.
func (store *PostgresIdentityStore) FindIdentityByEmail(ctx context.Context, email string) (authkit.Identity, error) {
	row := store.pool.QueryRow(ctx, `
SELECT id, email, display_name, picture_url, provider_subject, created_at_unix, updated_at_unix
FROM identities
WHERE email = $1
`, email)
	var identity authkit.Identity
	var createdUnix int64
	var updatedUnix int64
	scanErr := row.Scan(&identity.ID, &identity.Email, &identity.DisplayName, &identity.PictureURL, &identity.ProviderSubject, &createdUnix, &updatedUnix)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return authkit.Identity{}, authkit.ErrIdentityNotFound
	}
	if scanErr != nil {
		return authkit.Identity{}, fmt.Errorf("identity_store.pg.find: %w", scanErr)
	}
	identity.CreatedAt = time.Unix(createdUnix, 0).UTC()
	identity.UpdatedAt = time.Unix(updatedUnix, 0).UTC()
	return identity, nil
}

// SaveIdentity inserts a new identity or refreshes the display fields of an
// existing one. The provider subject is only filled when previously empty.
// Timestamps are taken from the identity as supplied by the resolver.
func (store *PostgresIdentityStore) SaveIdentity(ctx context.Context, identity authkit.Identity) (authkit.Identity, error) {
	tag, updateErr := store.pool.Exec(ctx, `
UPDATE identities
SET display_name = $2,
    picture_url = $3,
    provider_subject = CASE WHEN provider_subject = '' THEN $4 ELSE provider_subject END,
    updated_at_unix = $5
WHERE id = $1
`, identity.ID, identity.DisplayName, identity.PictureURL, identity.ProviderSubject, identity.UpdatedAt.Unix())
	if updateErr != nil {
		return authkit.Identity{}, fmt.Errorf("identity_store.pg.update: %w", updateErr)
	}
	if tag.RowsAffected() == 0 {
		_, insertErr := store.pool.Exec(ctx, `
INSERT INTO identities (id, email, display_name, picture_url, provider_subject, created_at_unix, updated_at_unix)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, identity.ID, identity.Email, identity.DisplayName, identity.PictureURL, identity.ProviderSubject, identity.CreatedAt.Unix(), identity.UpdatedAt.Unix())
		if insertErr != nil {
			return authkit.Identity{}, classifyInsertError(insertErr)
		}
	}
	return store.FindIdentityByEmail(ctx, identity.Email)
}

func classifyInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("identity_store.pg.insert: %w", authkit.ErrDuplicateEmail)
	}
	return fmt.Errorf("identity_store.pg.insert: %w", err)
}
