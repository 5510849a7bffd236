package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"chatsync/pkg/logger"
)

// Pebble is the on-disk Store backend.
type Pebble struct {
	db   *pebble.DB
	path string
}

// Open opens (or creates) a pebble database at path. Writes are synced;
// the local replica is the source of truth and must not lose acknowledged
// mutations.
func Open(path string) (*Pebble, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &Pebble{db: db, path: path}, nil
}

// Path returns the database directory.
func (p *Pebble) Path() string { return p.path }

func (p *Pebble) Read(key string) ([]byte, error) {
	if p.db == nil {
		return nil, fmt.Errorf("pebble not opened; call storage.Open first")
	}
	v, closer, err := p.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	if cerr := closer.Close(); cerr != nil {
		return nil, cerr
	}
	return out, nil
}

func (p *Pebble) Write(key string, value []byte) error {
	if p.db == nil {
		return fmt.Errorf("pebble not opened; call storage.Open first")
	}
	if err := p.db.Set([]byte(key), value, pebble.Sync); err != nil {
		logger.Error("pebble_set_failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (p *Pebble) Delete(key string) error {
	if p.db == nil {
		return fmt.Errorf("pebble not opened; call storage.Open first")
	}
	if err := p.db.Delete([]byte(key), pebble.Sync); err != nil {
		logger.Error("pebble_delete_failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (p *Pebble) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}
