package errs

import "errors"

// Error taxonomy shared by the room session engine. Every condition is terminal
// for the request that triggered it; nothing in the core retries on these.
var (
	// ErrNotFound means a referenced room, chapter, story, vote or option does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotLoaded means the operation needs a story installed for the room first.
	ErrNotLoaded = errors.New("not loaded")

	// ErrMalformed means the input violates a structural invariant.
	ErrMalformed = errors.New("malformed")

	// ErrClosed means the vote is already resolved or the room was torn down.
	ErrClosed = errors.New("closed")

	// ErrUnavailable means an external capability (generator, token issuer, store) failed.
	ErrUnavailable = errors.New("unavailable")
)

// Code returns a short machine readable code for err, used in HTTP and
// WebSocket error payloads.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotLoaded):
		return "not_loaded"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}
