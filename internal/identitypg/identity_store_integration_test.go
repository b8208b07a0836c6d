package identitypg

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tyemirov/tasktrack/internal/authkit"
)

const postgresURLEnv = "TASKTRACK_TEST_POSTGRES_URL"

func openTestStore(t *testing.T) *PostgresIdentityStore {
	t.Helper()
	databaseURL := os.Getenv(postgresURLEnv)
	if databaseURL == "" {
		t.Skipf("%s not set", postgresURLEnv)
	}
	ctx := context.Background()
	pool, err := BuildPool(ctx, databaseURL)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if schemaErr := EnsureSchema(ctx, pool); schemaErr != nil {
		t.Fatalf("schema: %v", schemaErr)
	}
	return NewPostgresIdentityStore(pool)
}

func TestPostgresIdentityStoreSaveAndFind(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	email := uuid.NewString() + "@example.com"
	created := time.Unix(1700000000, 0).UTC()

	if _, err := store.FindIdentityByEmail(ctx, email); !errors.Is(err, authkit.ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}

	saved, err := store.SaveIdentity(ctx, authkit.Identity{
		ID:              uuid.NewString(),
		Email:           email,
		DisplayName:     "A",
		PictureURL:      "http://img/1",
		ProviderSubject: "sub-1",
		CreatedAt:       created,
		UpdatedAt:       created,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !saved.CreatedAt.Equal(created) || !saved.UpdatedAt.Equal(created) {
		t.Fatalf("expected supplied timestamps, got %v / %v", saved.CreatedAt, saved.UpdatedAt)
	}

	refreshed := saved
	refreshed.DisplayName = "A Renamed"
	refreshed.ProviderSubject = "sub-other"
	refreshed.UpdatedAt = created.Add(time.Hour)
	updated, err := store.SaveIdentity(ctx, refreshed)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != saved.ID || updated.DisplayName != "A Renamed" {
		t.Fatalf("expected refreshed identity, got %#v", updated)
	}
	if updated.ProviderSubject != "sub-1" {
		t.Fatalf("expected provider subject to stay sub-1, got %s", updated.ProviderSubject)
	}
	if !updated.UpdatedAt.Equal(created.Add(time.Hour)) || !updated.CreatedAt.Equal(created) {
		t.Fatalf("unexpected timestamps %v / %v", updated.CreatedAt, updated.UpdatedAt)
	}
}

func TestPostgresIdentityStoreRejectsDuplicateEmail(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	email := uuid.NewString() + "@example.com"
	now := time.Unix(1700000000, 0).UTC()

	if _, err := store.SaveIdentity(ctx, authkit.Identity{ID: uuid.NewString(), Email: email, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := store.SaveIdentity(ctx, authkit.Identity{ID: uuid.NewString(), Email: email, CreatedAt: now, UpdatedAt: now})
	if !errors.Is(err, authkit.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}
