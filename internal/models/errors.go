package models

import "errors"

// Domain errors shared by the store implementations and the services.
var (
	// ErrNotFound is returned when a handle does not resolve, or resolves to an
	// entity the caller may not see. The two cases are never distinguished.
	ErrNotFound = errors.New("not found")

	// ErrInvalidStateTransition is returned when a lifecycle transition is not
	// allowed from the entity's current state (e.g. accepting a rejected request).
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrAmbiguousMatch is returned when skeleton promotion cannot identify
	// exactly one real child for a skeleton child.
	ErrAmbiguousMatch = errors.New("ambiguous match")

	// ErrConstraintViolation is returned when an insert would break a
	// uniqueness invariant, such as a second host copy of one activity group
	// for the same child.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrInvalidInput is returned when a request is malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateAccount is returned when registering a contact that already
	// belongs to a real account.
	ErrDuplicateAccount = errors.New("account already registered")

	// ErrInvalidCredentials is returned when login fails.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError reports a rejected input field. It matches ErrInvalidInput
// under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Unwrap lets callers treat every validation failure as ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
