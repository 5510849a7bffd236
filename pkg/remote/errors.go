package remote

import (
	"errors"
	"fmt"
)

// Error taxonomy the orchestrator interprets. The client maps transport
// and status failures onto these; it does not decide retry policy beyond
// the stale-id and conflict recoveries documented on Client.
var (
	// ErrUnauthorized: token missing, expired, or rejected.
	ErrUnauthorized = errors.New("remote: unauthorized")
	// ErrNotFound: the named resource does not exist in the store.
	ErrNotFound = errors.New("remote: not found")
	// ErrConflict: concurrent-write detected by the store.
	ErrConflict = errors.New("remote: conflict")
	// ErrTransient: network failure, timeout, or a 5xx from the store.
	ErrTransient = errors.New("remote: transient failure")
	// ErrMalformed: the store returned a body that does not decode.
	ErrMalformed = errors.New("remote: malformed response")
)

// statusError wraps a taxonomy error with the HTTP detail for logs.
func statusError(kind error, path string, status int) error {
	return fmt.Errorf("%w: %s (status %d)", kind, path, status)
}

// classify maps an HTTP status to the taxonomy.
func classify(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrUnauthorized
	case status == 404:
		return ErrNotFound
	case status == 409 || status == 412:
		return ErrConflict
	default:
		return ErrTransient
	}
}
