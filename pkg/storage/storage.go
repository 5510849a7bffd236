// Package storage defines the local persistence port. The sync core only
// sees this interface, so tests run against the in-memory backend and the
// daemon runs against pebble.
package storage

import "errors"

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Store is a small key/value port. Writes must be durable when the call
// returns: the sync layer assumes a completed local write survives a
// crash that happens before the next remote sync.
type Store interface {
	Read(key string) ([]byte, error)
	Write(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// IsNotFound reports whether err means the key was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
