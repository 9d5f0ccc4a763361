// Package metadata stores small client-side key/value settings, such as the
// last drain result, in SQLite.
package metadata

import "context"

// Repository is a byte-valued key/value store. Get returns nil for a
// missing key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
