// Package records persists generic collection records in the local SQLite
// store. Domain fields are kept as a JSON document so any declared field can
// be indexed with json_extract.
package records

import (
	"context"

	"github.com/dmitrijs2005/medsync/internal/client/models"
)

// Repository is keyed by (collection, id). Get returns nil for a missing
// record and Delete ignores one.
type Repository interface {
	Put(ctx context.Context, collection string, rec models.Record) error
	Get(ctx context.Context, collection, id string) (*models.Record, error)
	GetAll(ctx context.Context, collection string) ([]models.Record, error)
	FindByField(ctx context.Context, collection, field string, value any) ([]models.Record, error)
	Delete(ctx context.Context, collection, id string) error
	Clear(ctx context.Context, collection string) error
	EnsureIndex(ctx context.Context, field string) error
}
