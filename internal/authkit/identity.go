package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Claim names asserted by the identity provider.
const (
	ClaimEmail   = "email"
	ClaimName    = "name"
	ClaimSubject = "sub"
	ClaimPicture = "picture"
)

const maxResolveAttempts = 3

// AssertionClaims maps provider claim names to their values.
type AssertionClaims map[string]string

func (claims AssertionClaims) value(name string) string {
	if claims == nil {
		return ""
	}
	return strings.TrimSpace(claims[name])
}

// Identity is the application's own record of a user, keyed by email.
type Identity struct {
	ID              string
	Email           string
	DisplayName     string
	PictureURL      string
	ProviderSubject string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IdentityStore persists identities and enforces email uniqueness.
type IdentityStore interface {
	// FindIdentityByEmail returns ErrIdentityNotFound when no identity has the email.
	FindIdentityByEmail(ctx context.Context, email string) (Identity, error)
	// SaveIdentity inserts or updates by ID. An insert that collides on email
	// returns ErrDuplicateEmail.
	SaveIdentity(ctx context.Context, identity Identity) (Identity, error)
}

// IdentityResolver maps provider claims onto a local Identity.
type IdentityResolver struct {
	store  IdentityStore
	clock  Clock
	logger *zap.Logger
	newID  func() string
}

// NewIdentityResolver constructs a resolver over the given store.
func NewIdentityResolver(store IdentityStore, clock Clock, logger *zap.Logger) *IdentityResolver {
	if store == nil {
		panic("identity store is required")
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityResolver{
		store:  store,
		clock:  clock,
		logger: logger,
		newID:  func() string { return uuid.NewString() },
	}
}

// Resolve looks up the identity by email, refreshing its display fields, or
// creates it. A concurrent first login that wins the insert race is picked up
// by re-reading the record.
func (resolver *IdentityResolver) Resolve(ctx context.Context, claims AssertionClaims) (Identity, error) {
	email := claims.value(ClaimEmail)
	if email == "" {
		return Identity{}, fmt.Errorf("identity_resolver.resolve: %w: missing %s", ErrInvalidAssertion, ClaimEmail)
	}

	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		existing, findErr := resolver.store.FindIdentityByEmail(ctx, email)
		switch {
		case findErr == nil:
			return resolver.refresh(ctx, existing, claims)
		case !errors.Is(findErr, ErrIdentityNotFound):
			return Identity{}, fmt.Errorf("identity_resolver.lookup: %w", findErr)
		}

		now := resolver.clock.Now().UTC()
		created, saveErr := resolver.store.SaveIdentity(ctx, Identity{
			ID:              resolver.newID(),
			Email:           email,
			DisplayName:     claims.value(ClaimName),
			PictureURL:      claims.value(ClaimPicture),
			ProviderSubject: claims.value(ClaimSubject),
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if saveErr == nil {
			return created, nil
		}
		if !errors.Is(saveErr, ErrDuplicateEmail) {
			return Identity{}, fmt.Errorf("identity_resolver.create: %w", saveErr)
		}
		resolver.logger.Info("identity created concurrently; re-reading",
			zap.String("code", "identity.resolve.race"),
			zap.Int("attempt", attempt))
	}
	return Identity{}, fmt.Errorf("identity_resolver.resolve: %w", ErrIdentityConflict)
}

func (resolver *IdentityResolver) refresh(ctx context.Context, existing Identity, claims AssertionClaims) (Identity, error) {
	existing.DisplayName = claims.value(ClaimName)
	existing.PictureURL = claims.value(ClaimPicture)
	if existing.ProviderSubject == "" {
		existing.ProviderSubject = claims.value(ClaimSubject)
	}
	existing.UpdatedAt = resolver.clock.Now().UTC()
	updated, saveErr := resolver.store.SaveIdentity(ctx, existing)
	if saveErr != nil {
		return Identity{}, fmt.Errorf("identity_resolver.update: %w", saveErr)
	}
	return updated, nil
}
