package cache

import (
	"strings"
	"time"
)

// Cache stores short-lived market data snapshots keyed by "<namespace>:<id>".
type Cache interface {
	// Get returns (value, true) if found, (nil, false) otherwise.
	Get(key string) (interface{}, bool)

	// Set stores a value with a TTL. Ristretto may drop sets under contention.
	Set(key string, value interface{}, ttl time.Duration) bool

	Delete(key string)
	Clear()
	Close()
}

// Key joins a namespace and an id.
func Key(namespace, id string) string {
	return namespace + ":" + id
}

func namespaceOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "default"
}

// Fetch returns the cached value for key, loading and storing it on a miss.
// Loader errors are returned unchanged and nothing is cached.
func Fetch[T any](c Cache, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	value, err := load()
	if err != nil {
		var zero T
		return zero, err
	}

	c.Set(key, value, ttl)
	return value, nil
}
