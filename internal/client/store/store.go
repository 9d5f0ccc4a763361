// Package store is the client's durable local store: records of every known
// collection plus the pending change log, kept in one SQLite database.
//
// Reads and writes are logically immediate. Operations that must change
// several rows together (id swaps, full refreshes, cancellations) run in a
// single transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/medsync/internal/client/repositories/pending"
	"github.com/dmitrijs2005/medsync/internal/client/repositories/records"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/dbx"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// ErrLocked is returned by Open when another process holds the store.
var ErrLocked = errors.New("local store is used by another process")

type Store struct {
	db        *sql.DB
	lock      *flock.Flock
	lockPath  string
	catalogue *common.Catalogue
	now       func() time.Time
	newID     func() string

	records  records.Repository
	pending  pending.Repository
	metadata metadata.Repository
}

type Option func(*Store)

// WithLockFile guards the store with an exclusive lock on path.
func WithLockFile(path string) Option {
	return func(s *Store) { s.lockPath = path }
}

// WithClock overrides the time source used for pending change timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the store at dsn for the given catalogue
// and creates the declared secondary indexes.
func Open(ctx context.Context, dsn string, catalogue *common.Catalogue, opts ...Option) (*Store, error) {
	s := &Store{
		catalogue: catalogue,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.lockPath != "" {
		s.lock = flock.New(s.lockPath)
		locked, err := s.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock local store: %w", err)
		}
		if !locked {
			return nil, ErrLocked
		}
	}

	db, err := InitDatabase(ctx, dsn)
	if err != nil {
		s.unlock()
		return nil, err
	}
	s.db = db
	s.bind(db)

	for _, col := range catalogue.All() {
		for _, field := range col.Indexes {
			if err := s.records.EnsureIndex(ctx, field); err != nil {
				_ = s.Close()
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *Store) bind(db dbx.DBTX) {
	s.records = records.NewSQLiteRepository(db)
	s.pending = pending.NewSQLiteRepository(db)
	s.metadata = metadata.NewSQLiteRepository(db)
}

// Close releases the database and the lock.
func (s *Store) Close() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	s.unlock()
	return err
}

func (s *Store) unlock() {
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
}

// Collections lists the known collection names.
func (s *Store) Collections() []string {
	return s.catalogue.Names()
}

func (s *Store) check(collection string) error {
	_, err := s.catalogue.Lookup(collection)
	return err
}

// Put upserts rec by id.
func (s *Store) Put(ctx context.Context, collection string, rec models.Record) error {
	if err := s.check(collection); err != nil {
		return err
	}
	return s.records.Put(ctx, collection, rec)
}

// Get returns nil when the record does not exist.
func (s *Store) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	if err := s.check(collection); err != nil {
		return nil, err
	}
	return s.records.Get(ctx, collection, id)
}

func (s *Store) GetAll(ctx context.Context, collection string) ([]models.Record, error) {
	if err := s.check(collection); err != nil {
		return nil, err
	}
	return s.records.GetAll(ctx, collection)
}

// GetByIndex looks records up by a declared index field. A nil value or an
// undeclared index fails with common.ErrInvalidQuery.
func (s *Store) GetByIndex(ctx context.Context, collection, index string, value any) ([]models.Record, error) {
	if value == nil {
		return nil, fmt.Errorf("%w: %s.%s looked up with no value", common.ErrInvalidQuery, collection, index)
	}
	col, err := s.catalogue.Lookup(collection)
	if err != nil {
		return nil, err
	}
	if !col.HasIndex(index) {
		return nil, fmt.Errorf("%w: %s has no index %q", common.ErrInvalidQuery, collection, index)
	}
	return s.records.FindByField(ctx, collection, index, value)
}

// Delete is a no-op for an absent id.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := s.check(collection); err != nil {
		return err
	}
	return s.records.Delete(ctx, collection, id)
}

func (s *Store) Clear(ctx context.Context, collection string) error {
	if err := s.check(collection); err != nil {
		return err
	}
	return s.records.Clear(ctx, collection)
}

// AppendPendingChange logs a mutation of payload with synced=false.
func (s *Store) AppendPendingChange(ctx context.Context, op models.Operation, collection string, payload models.Record) (models.PendingChange, error) {
	if err := s.check(collection); err != nil {
		return models.PendingChange{}, err
	}
	ch := models.PendingChange{
		ID:         s.newID(),
		Operation:  op,
		Collection: collection,
		RecordID:   payload.ID,
		Payload:    payload,
		Timestamp:  s.now(),
	}
	if err := s.pending.Append(ctx, &ch); err != nil {
		return models.PendingChange{}, err
	}
	return ch, nil
}

// ListPendingChanges returns unsynced changes oldest first.
func (s *Store) ListPendingChanges(ctx context.Context) ([]models.PendingChange, error) {
	return s.pending.ListUnsynced(ctx)
}

// GetPendingChange returns the change with the given id, synced or not, or
// nil when no such change exists.
func (s *Store) GetPendingChange(ctx context.Context, changeID string) (*models.PendingChange, error) {
	return s.pending.Get(ctx, changeID)
}

// MarkSynced is idempotent.
func (s *Store) MarkSynced(ctx context.Context, changeID string) error {
	return s.pending.MarkSynced(ctx, changeID)
}

func (s *Store) CountPendingChanges(ctx context.Context) (int, error) {
	return s.pending.CountUnsynced(ctx)
}

func (s *Store) HasPendingChanges(ctx context.Context, collection, recordID string) (bool, error) {
	list, err := s.pending.ListUnsyncedFor(ctx, collection, recordID)
	if err != nil {
		return false, err
	}
	return len(list) > 0, nil
}

func (s *Store) RecordFailure(ctx context.Context, changeID, message string) error {
	return s.pending.RecordFailure(ctx, changeID, message)
}

// FoldPendingUpdate replaces the payload of the newest unsynced change of the
// record when that change is an update, and reports whether it did. Creates
// and deletes are never folded, so their order is kept.
func (s *Store) FoldPendingUpdate(ctx context.Context, collection string, rec models.Record) (bool, error) {
	folded := false
	err := s.tx(ctx, func(ctx context.Context, tx *Store) error {
		list, err := tx.pending.ListUnsyncedFor(ctx, collection, rec.ID)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return nil
		}
		last := list[len(list)-1]
		if last.Operation != models.OpUpdate {
			return nil
		}
		if err := tx.pending.ReplacePayload(ctx, last.ID, rec); err != nil {
			return err
		}
		folded = true
		return nil
	})
	return folded, err
}

// CancelUnsyncedCreate resolves a record that was never confirmed by the
// remote: when an unsynced create exists for it, that create and every later
// unsynced change of the record are flagged synced and cancelled.
func (s *Store) CancelUnsyncedCreate(ctx context.Context, collection, recordID string) (bool, error) {
	cancelled := false
	err := s.tx(ctx, func(ctx context.Context, tx *Store) error {
		list, err := tx.pending.ListUnsyncedFor(ctx, collection, recordID)
		if err != nil {
			return err
		}
		hasCreate := false
		for _, ch := range list {
			if ch.Operation == models.OpCreate {
				hasCreate = true
				break
			}
		}
		if !hasCreate {
			return nil
		}
		if _, err := tx.pending.CancelRecord(ctx, collection, recordID); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	return cancelled, err
}

// SwapRecordID installs the server copy of a record created under tempID.
// The temporary record is removed, the server record is stored with
// OfflineOrigin=false (unless the record was deleted locally in the
// meantime) and unsynced changes are re-pointed at the server id. While
// updates of the record are still queued, the local fields are kept on top
// of the server copy.
func (s *Store) SwapRecordID(ctx context.Context, collection, tempID string, server models.Record) error {
	if err := s.check(collection); err != nil {
		return err
	}
	server.OfflineOrigin = false
	return s.tx(ctx, func(ctx context.Context, tx *Store) error {
		local, err := tx.records.Get(ctx, collection, tempID)
		if err != nil {
			return err
		}
		if err := tx.records.Delete(ctx, collection, tempID); err != nil {
			return err
		}
		if local != nil {
			list, err := tx.pending.ListUnsyncedFor(ctx, collection, tempID)
			if err != nil {
				return err
			}
			for _, ch := range list {
				if ch.Operation == models.OpUpdate {
					server = server.Merge(local.Fields, server.UpdatedAt)
					break
				}
			}
			if err := tx.records.Put(ctx, collection, server); err != nil {
				return err
			}
		}
		_, err = tx.pending.RewriteRecordID(ctx, collection, tempID, server.ID)
		return err
	})
}

// ReplaceCollection swaps the local contents of a collection for the remote
// list. Records with unsynced changes keep their local state: their local
// copy survives and a pending delete is not undone by the refresh.
func (s *Store) ReplaceCollection(ctx context.Context, collection string, remote []models.Record) error {
	if err := s.check(collection); err != nil {
		return err
	}
	return s.tx(ctx, func(ctx context.Context, tx *Store) error {
		changes, err := tx.pending.ListUnsynced(ctx)
		if err != nil {
			return err
		}
		latest := make(map[string]models.Operation)
		for _, ch := range changes {
			if ch.Collection == collection {
				latest[ch.RecordID] = ch.Operation
			}
		}

		keep := make([]models.Record, 0, len(latest))
		for id, op := range latest {
			if op == models.OpDelete {
				continue
			}
			local, err := tx.records.Get(ctx, collection, id)
			if err != nil {
				return err
			}
			if local != nil {
				keep = append(keep, *local)
			}
		}

		if err := tx.records.Clear(ctx, collection); err != nil {
			return err
		}
		for _, rec := range remote {
			if _, queued := latest[rec.ID]; queued {
				continue
			}
			rec.OfflineOrigin = false
			if err := tx.records.Put(ctx, collection, rec); err != nil {
				return err
			}
		}
		for _, rec := range keep {
			if err := tx.records.Put(ctx, collection, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetMeta returns nil for a missing key.
func (s *Store) GetMeta(ctx context.Context, key string) ([]byte, error) {
	return s.metadata.Get(ctx, key)
}

func (s *Store) SetMeta(ctx context.Context, key string, value []byte) error {
	return s.metadata.Set(ctx, key, value)
}

// tx runs fn against a copy of the store bound to one transaction.
func (s *Store) tx(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, t dbx.DBTX) error {
		bound := *s
		bound.bind(t)
		return fn(ctx, &bound)
	})
}
