package gateway

import (
	"context"

	"github.com/dmitrijs2005/medsync/internal/client/models"
)

// Gateway is the remote side of synchronization.
type Gateway interface {
	// Create posts fields and returns the canonical record. The idempotency
	// key lets the remote collapse replays of the same create.
	Create(ctx context.Context, collection string, fields map[string]any, idempotencyKey string) (models.Record, error)
	// Update sends a partial update. The returned record may be empty when
	// the remote answers without a body.
	Update(ctx context.Context, collection, id string, fields map[string]any) (models.Record, error)
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string) ([]models.Record, error)
	Ping(ctx context.Context) error
}
