// Package storage implements the key-value stores behind saved searches and
// user preferences.
package storage

import (
	"fmt"
	"strings"
)

// Backend persists opaque values under string keys.
type Backend interface {
	// Get returns the value stored under key and whether it exists.
	Get(key string) ([]byte, bool, error)

	// Put stores value under key, replacing any previous value.
	Put(key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Keys lists the stored keys starting with prefix, in ascending order.
	Keys(prefix string) ([]string, error)

	// Close releases the backend.
	Close() error
}

// Open creates the backend named by kind: "memory", "sqlite" (dsn is a file path)
// or "postgres" (dsn is a connection string).
func Open(kind, dsn string) (Backend, error) {
	switch strings.ToLower(kind) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(dsn)
	case "postgres", "postgresql":
		return NewPostgresStore(dsn)
	}
	return nil, fmt.Errorf("unknown storage type %q", kind)
}
