package shared

import "errors"

var (
	// ErrNotFound indicates the requested role or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation such as a duplicate role name.
	ErrConflict = errors.New("conflict")
	// ErrCycleDetected indicates the role parent chain revisits a node or
	// exceeds the maximum depth. Resolution must fail instead of returning a
	// truncated permission set.
	ErrCycleDetected = errors.New("role cycle detected")
	// ErrUnauthenticated indicates no user context is present.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the authenticated user lacks the required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrHasDependents indicates a role delete was blocked because child roles
	// or assigned users still reference it.
	ErrHasDependents = errors.New("role has dependents")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
