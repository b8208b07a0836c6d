package authkit

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

const loginStateByteLength = 32

// LoginStateStore issues one-time OAuth state values, each bound to the PKCE
// verifier of the login attempt that created it.
type LoginStateStore interface {
	// Issue stores the verifier under a fresh state value with the configured TTL.
	Issue(ctx context.Context, verifier string) (string, error)
	// Consume returns the verifier bound to state and invalidates the state.
	Consume(ctx context.Context, state string) (string, error)
}

type loginStateEntry struct {
	verifier  string
	expiresAt time.Time
}

type memoryLoginStateStore struct {
	mutex   sync.Mutex
	entries map[string]loginStateEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryLoginStateStore constructs an in-memory LoginStateStore with the provided TTL.
func NewMemoryLoginStateStore(ttl time.Duration) LoginStateStore {
	return &memoryLoginStateStore{
		entries: make(map[string]loginStateEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (store *memoryLoginStateStore) Issue(ctx context.Context, verifier string) (string, error) {
	state, err := randomLoginState()
	if err != nil {
		return "", err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	store.entries[state] = loginStateEntry{verifier: verifier, expiresAt: store.now().Add(store.ttl)}
	return state, nil
}

func (store *memoryLoginStateStore) Consume(ctx context.Context, state string) (string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	entry, ok := store.entries[state]
	if !ok {
		store.purgeExpiredLocked()
		return "", ErrLoginStateNotFound
	}
	delete(store.entries, state)
	if store.now().After(entry.expiresAt) {
		store.purgeExpiredLocked()
		return "", ErrLoginStateExpired
	}
	store.purgeExpiredLocked()
	return entry.verifier, nil
}

func (store *memoryLoginStateStore) purgeExpiredLocked() {
	if len(store.entries) == 0 {
		return
	}
	now := store.now()
	for state, entry := range store.entries {
		if now.After(entry.expiresAt) {
			delete(store.entries, state)
		}
	}
}

func randomLoginState() (string, error) {
	buffer := make([]byte, loginStateByteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
