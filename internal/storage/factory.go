package storage

import (
	"errors"
	"fmt"
)

const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

// ErrSQLiteUnavailable is returned for sqlite stores in builds without the
// sqlite tag.
var ErrSQLiteUnavailable = errors.New("sqlite store not compiled in, rebuild with -tags sqlite")

// NewStore opens the store named by kind. It still needs Init before use.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		if path == "" {
			return nil, errors.New("sqlite store needs a path")
		}
		return openSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

// Close releases stores that hold a connection. Memory stores are a no-op.
func Close(store Store) error {
	if c, ok := store.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
