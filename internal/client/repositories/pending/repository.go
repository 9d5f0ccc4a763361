// Package pending persists the append-only log of local mutations waiting to
// be replayed against the remote. Entries are never deleted; replayed or
// cancelled entries are flagged synced.
package pending

import (
	"context"

	"github.com/dmitrijs2005/medsync/internal/client/models"
)

type Repository interface {
	// Append stores ch with synced=false and sets ch.Seq.
	Append(ctx context.Context, ch *models.PendingChange) error
	// ListUnsynced returns unsynced entries in insertion order.
	ListUnsynced(ctx context.Context) ([]models.PendingChange, error)
	// ListUnsyncedFor narrows ListUnsynced to one record.
	ListUnsyncedFor(ctx context.Context, collection, recordID string) ([]models.PendingChange, error)
	Get(ctx context.Context, id string) (*models.PendingChange, error)
	CountUnsynced(ctx context.Context) (int, error)
	// MarkSynced is idempotent; unknown ids are ignored.
	MarkSynced(ctx context.Context, id string) error
	// CancelRecord flags every unsynced entry of a record as synced and
	// cancelled and reports how many were flagged.
	CancelRecord(ctx context.Context, collection, recordID string) (int64, error)
	RecordFailure(ctx context.Context, id, message string) error
	ReplacePayload(ctx context.Context, id string, payload models.Record) error
	// RewriteRecordID points unsynced entries of oldID at newID, payload
	// included.
	RewriteRecordID(ctx context.Context, collection, oldID, newID string) (int64, error)
}
