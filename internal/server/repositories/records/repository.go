// Package records stores the reference server's records, in PostgreSQL or
// in memory.
package records

import (
	"context"
	"time"

	"github.com/dmitrijs2005/medsync/internal/server/models"
)

// Repository persists records. Lookups of a missing record fail with
// common.ErrNotFound.
type Repository interface {
	// Insert stores rec unless the collection already holds a record with
	// the same non-empty idempotency key. It reports whether rec was stored.
	Insert(ctx context.Context, rec *models.Record) (bool, error)
	FindByIdempotencyKey(ctx context.Context, collection, key string) (*models.Record, error)
	Get(ctx context.Context, collection, id string) (*models.Record, error)
	// Merge overlays fields onto the stored record and returns the result.
	Merge(ctx context.Context, collection, id string, fields map[string]any, now time.Time) (*models.Record, error)
	Delete(ctx context.Context, collection, id string) error
	// List returns the collection oldest first.
	List(ctx context.Context, collection string) ([]*models.Record, error)
}
