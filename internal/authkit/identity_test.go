package authkit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fixedClock struct {
	timestamp time.Time
}

func (clock fixedClock) Now() time.Time {
	return clock.timestamp
}

// racingIdentityStore hides an identity from the first lookups so the
// resolver observes the insert collision a concurrent login would cause.
type racingIdentityStore struct {
	*MemoryIdentityStore
	hiddenLookups int
	lookups       int
}

func (store *racingIdentityStore) FindIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	store.lookups++
	if store.lookups <= store.hiddenLookups {
		return Identity{}, ErrIdentityNotFound
	}
	return store.MemoryIdentityStore.FindIdentityByEmail(ctx, email)
}

type failingIdentityStore struct {
	findErr error
	saveErr error
}

func (store failingIdentityStore) FindIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	return Identity{}, store.findErr
}

func (store failingIdentityStore) SaveIdentity(ctx context.Context, identity Identity) (Identity, error) {
	return Identity{}, store.saveErr
}

func TestIdentityResolverRejectsMissingEmail(t *testing.T) {
	t.Parallel()

	store := NewMemoryIdentityStore()
	resolver := NewIdentityResolver(store, nil, nil)

	for _, claims := range []AssertionClaims{nil, {ClaimName: "A"}, {ClaimEmail: "   "}} {
		_, err := resolver.Resolve(context.Background(), claims)
		if !errors.Is(err, ErrInvalidAssertion) {
			t.Fatalf("expected ErrInvalidAssertion for %v, got %v", claims, err)
		}
	}
	if store.Count() != 0 {
		t.Fatalf("expected no identities to be created")
	}
}

func TestIdentityResolverUpsertsByEmail(t *testing.T) {
	t.Parallel()

	store := NewMemoryIdentityStore()
	resolver := NewIdentityResolver(store, fixedClock{timestamp: time.Unix(1700000000, 0)}, nil)

	first, err := resolver.Resolve(context.Background(), AssertionClaims{
		ClaimEmail:   "a@x.com",
		ClaimName:    "A",
		ClaimSubject: "sub-1",
		ClaimPicture: "http://img/1",
	})
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if first.ID == "" || first.Email != "a@x.com" || first.ProviderSubject != "sub-1" {
		t.Fatalf("unexpected identity: %#v", first)
	}

	second, err := resolver.Resolve(context.Background(), AssertionClaims{
		ClaimEmail:   "a@x.com",
		ClaimName:    "A Renamed",
		ClaimSubject: "sub-other",
		ClaimPicture: "http://img/2",
	})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same identity id, got %s and %s", first.ID, second.ID)
	}
	if second.DisplayName != "A Renamed" || second.PictureURL != "http://img/2" {
		t.Fatalf("expected refreshed display fields, got %#v", second)
	}
	if second.ProviderSubject != "sub-1" {
		t.Fatalf("expected provider subject to remain sub-1, got %s", second.ProviderSubject)
	}
	if store.Count() != 1 {
		t.Fatalf("expected exactly one identity, got %d", store.Count())
	}
}

func TestIdentityResolverRecoversFromInsertRace(t *testing.T) {
	t.Parallel()

	memory := NewMemoryIdentityStore()
	if _, err := memory.SaveIdentity(context.Background(), Identity{ID: "winner", Email: "a@x.com", DisplayName: "Old"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := &racingIdentityStore{MemoryIdentityStore: memory, hiddenLookups: 1}
	resolver := NewIdentityResolver(store, nil, nil)

	identity, err := resolver.Resolve(context.Background(), AssertionClaims{ClaimEmail: "a@x.com", ClaimName: "New"})
	if err != nil {
		t.Fatalf("expected race to be recovered, got %v", err)
	}
	if identity.ID != "winner" || identity.DisplayName != "New" {
		t.Fatalf("expected the winning record to be refreshed, got %#v", identity)
	}
	if memory.Count() != 1 {
		t.Fatalf("expected one identity, got %d", memory.Count())
	}
}

func TestIdentityResolverBoundsRetries(t *testing.T) {
	t.Parallel()

	memory := NewMemoryIdentityStore()
	if _, err := memory.SaveIdentity(context.Background(), Identity{ID: "winner", Email: "a@x.com"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := &racingIdentityStore{MemoryIdentityStore: memory, hiddenLookups: maxResolveAttempts}
	resolver := NewIdentityResolver(store, nil, nil)

	_, err := resolver.Resolve(context.Background(), AssertionClaims{ClaimEmail: "a@x.com"})
	if !errors.Is(err, ErrIdentityConflict) {
		t.Fatalf("expected ErrIdentityConflict, got %v", err)
	}
	if store.lookups != maxResolveAttempts {
		t.Fatalf("expected %d lookups, got %d", maxResolveAttempts, store.lookups)
	}
}

func TestIdentityResolverSurfacesStoreFailures(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("store_down")
	resolver := NewIdentityResolver(failingIdentityStore{findErr: storeErr}, nil, nil)
	if _, err := resolver.Resolve(context.Background(), AssertionClaims{ClaimEmail: "a@x.com"}); !errors.Is(err, storeErr) {
		t.Fatalf("expected lookup failure, got %v", err)
	}

	resolver = NewIdentityResolver(failingIdentityStore{findErr: ErrIdentityNotFound, saveErr: storeErr}, nil, nil)
	if _, err := resolver.Resolve(context.Background(), AssertionClaims{ClaimEmail: "a@x.com"}); !errors.Is(err, storeErr) {
		t.Fatalf("expected create failure, got %v", err)
	}
}

func TestIdentityResolverConcurrentFirstLogins(t *testing.T) {
	t.Parallel()

	store := NewMemoryIdentityStore()
	resolver := NewIdentityResolver(store, nil, nil)

	const workers = 16
	identifiers := make([]string, workers)
	errs := make([]error, workers)
	var waitGroup sync.WaitGroup
	for index := 0; index < workers; index++ {
		waitGroup.Add(1)
		go func(slot int) {
			defer waitGroup.Done()
			identity, err := resolver.Resolve(context.Background(), AssertionClaims{ClaimEmail: "same@x.com", ClaimName: "Same"})
			identifiers[slot] = identity.ID
			errs[slot] = err
		}(index)
	}
	waitGroup.Wait()

	for index := 0; index < workers; index++ {
		if errs[index] != nil {
			t.Fatalf("worker %d: %v", index, errs[index])
		}
		if identifiers[index] != identifiers[0] {
			t.Fatalf("expected a single identity id, got %s and %s", identifiers[0], identifiers[index])
		}
	}
	if store.Count() != 1 {
		t.Fatalf("expected one identity, got %d", store.Count())
	}
}
