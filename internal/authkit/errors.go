package authkit

import "errors"

var (
	// ErrInvalidAssertion indicates the identity provider claims lack a required field.
	ErrInvalidAssertion = errors.New("auth.invalid_assertion")
	// ErrUnauthorized indicates the authenticated identity does not own the resource.
	ErrUnauthorized = errors.New("access.unauthorized")
	// ErrIdentityNotFound indicates no identity matched the lookup key.
	ErrIdentityNotFound = errors.New("identity_store.not_found")
	// ErrDuplicateEmail indicates an insert collided with the email uniqueness constraint.
	ErrDuplicateEmail = errors.New("identity_store.duplicate_email")
	// ErrIdentityConflict indicates the create-or-update retry budget was exhausted.
	ErrIdentityConflict = errors.New("identity_resolver.conflict")
	// ErrLoginStateNotFound indicates the login state was never issued or already consumed.
	ErrLoginStateNotFound = errors.New("login_state.not_found")
	// ErrLoginStateExpired indicates the login state outlived its TTL.
	ErrLoginStateExpired = errors.New("login_state.expired")
)
