package ledger

import "errors"

var (
	// ErrInvalidPattern is returned when a text filter does not compile.
	ErrInvalidPattern = errors.New("invalid filter pattern")

	// ErrInvalidDirection is returned for an unknown direction filter.
	ErrInvalidDirection = errors.New("invalid direction filter")

	// ErrMalformedFeed is returned when a transaction list cannot be expanded.
	ErrMalformedFeed = errors.New("malformed transaction feed")
)
