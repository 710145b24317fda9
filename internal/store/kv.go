package store

import (
	"context"
	"errors"
)

// Well-known keys.
const (
	KeySeeded           = "officialAgentsSeeded"
	KeyPublishedAgents  = "publishedAgents"
	KeyRepositoryAgents = "repositoryAgents"
)

// ErrNotFound is returned by Get when a key is absent.
var ErrNotFound = errors.New("store: key not found")

// KV is a durable string-keyed blob store. Values are opaque strings,
// usually JSON documents written whole.
type KV interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Close releases the underlying connection.
	Close() error
}

// IsNotFound reports whether err means the key was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
