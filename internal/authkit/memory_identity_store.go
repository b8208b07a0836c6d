package authkit

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryIdentityStore is an in-memory store intended for tests and dev.
type MemoryIdentityStore struct {
	mutex   sync.Mutex
	byID    map[string]Identity
	byEmail map[string]string
}

// NewMemoryIdentityStore creates a new in-memory identity store.
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		byID:    make(map[string]Identity),
		byEmail: make(map[string]string),
	}
}

// FindIdentityByEmail returns the identity registered under the email.
func (store *MemoryIdentityStore) FindIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	identityID, ok := store.byEmail[email]
	if !ok {
		return Identity{}, fmt.Errorf("identity_store.memory.find: %w", ErrIdentityNotFound)
	}
	record, ok := store.byID[identityID]
	if !ok {
		return Identity{}, fmt.Errorf("identity_store.memory.find: %w", ErrIdentityNotFound)
	}
	return record, nil
}

// SaveIdentity inserts a new identity or updates the display fields of an existing one.
func (store *MemoryIdentityStore) SaveIdentity(ctx context.Context, identity Identity) (Identity, error) {
	if strings.TrimSpace(identity.ID) == "" || strings.TrimSpace(identity.Email) == "" {
		return Identity{}, fmt.Errorf("identity_store.memory.save: %w", ErrInvalidAssertion)
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	if existing, ok := store.byID[identity.ID]; ok {
		existing.DisplayName = identity.DisplayName
		existing.PictureURL = identity.PictureURL
		if existing.ProviderSubject == "" {
			existing.ProviderSubject = identity.ProviderSubject
		}
		existing.UpdatedAt = identity.UpdatedAt
		store.byID[identity.ID] = existing
		return existing, nil
	}
	if _, taken := store.byEmail[identity.Email]; taken {
		return Identity{}, fmt.Errorf("identity_store.memory.save: %w", ErrDuplicateEmail)
	}
	store.byID[identity.ID] = identity
	store.byEmail[identity.Email] = identity.ID
	return identity, nil
}

// Count reports the number of stored identities.
func (store *MemoryIdentityStore) Count() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.byID)
}
