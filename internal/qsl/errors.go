package qsl

import "errors"

// Sentinel errors for the engine call surface. Callers match with errors.Is;
// wrapping at layer boundaries preserves them.
var (
	// ErrNotFound is returned when an id references a missing row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateLog is returned when an insert would violate the
	// fuzzy-dedup invariant. It is surfaced, never auto-resolved.
	ErrDuplicateLog = errors.New("duplicate log")

	// ErrInvalidDirection is returned for a direction other than RC or TC.
	// This is a programmer error and must fail loudly.
	ErrInvalidDirection = errors.New("invalid card direction")

	// ErrDuplicateCardID is returned if a generated card id collides with
	// an existing one. Practically unreachable, but must not crash silently.
	ErrDuplicateCardID = errors.New("duplicate card identifier")
)
