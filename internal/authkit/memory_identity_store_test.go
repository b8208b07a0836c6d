package authkit

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryIdentityStoreErrors(t *testing.T) {
	store := NewMemoryIdentityStore()
	if _, err := store.FindIdentityByEmail(context.Background(), "missing@example.com"); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
	if _, err := store.SaveIdentity(context.Background(), Identity{ID: "id-1"}); err == nil {
		t.Fatalf("expected error when email is empty")
	}

	if _, err := store.SaveIdentity(context.Background(), Identity{ID: "id-1", Email: "a@x.com", DisplayName: "A"}); err != nil {
		t.Fatalf("save error: %v", err)
	}
	_, duplicateErr := store.SaveIdentity(context.Background(), Identity{ID: "id-2", Email: "a@x.com"})
	if !errors.Is(duplicateErr, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", duplicateErr)
	}

	updated, err := store.SaveIdentity(context.Background(), Identity{ID: "id-1", Email: "changed@x.com", DisplayName: "B"})
	if err != nil {
		t.Fatalf("update error: %v", err)
	}
	if updated.Email != "a@x.com" || updated.DisplayName != "B" {
		t.Fatalf("expected email to stay fixed and name to change, got %#v", updated)
	}
	if store.Count() != 1 {
		t.Fatalf("expected one identity, got %d", store.Count())
	}
}
