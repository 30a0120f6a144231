package auth

import "errors"

var (
	// ErrNotFound reports an unknown user, role or permission.
	ErrNotFound = errors.New("auth: not found")
	// ErrConflict reports a duplicate unique key, e.g. re-registering an email.
	ErrConflict = errors.New("auth: already exists")
	// ErrInvalidInput reports rejected caller input.
	ErrInvalidInput = errors.New("auth: invalid input")
	// ErrInvalidToken covers malformed tokens and bad signatures. Raw
	// cryptographic errors are never surfaced past this package.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenExpired reports a structurally valid but expired token.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrUnauthenticated reports a missing or unusable identity, including
	// tokens whose subject no longer exists.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrForbidden reports a valid identity with insufficient permissions.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrInvariant reports a rejected state transition, e.g. a hierarchy edge
	// that would create a cycle.
	ErrInvariant = errors.New("auth: invariant violation")
	// ErrUnavailable reports a storage failure during authorization. A denial
	// must be a deliberate decision, never an artifact of infrastructure
	// failure, so these are kept distinct from ErrForbidden.
	ErrUnavailable = errors.New("auth: storage unavailable")
)
