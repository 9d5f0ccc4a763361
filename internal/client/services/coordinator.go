package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/gateway"
	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/logging"
)

// ErrSyncSkipped is returned by SyncPendingChanges when the client is offline
// or another drain is already running.
var ErrSyncSkipped = errors.New("sync skipped")

// DeletePolicy decides what deleting a record never confirmed by the remote
// does to its queued create.
type DeletePolicy string

const (
	// DeletePolicyCancel drops the queued create and its follow-ups locally.
	DeletePolicyCancel DeletePolicy = "cancel"
	// DeletePolicyEnqueue queues a delete that is replayed after the create.
	DeletePolicyEnqueue DeletePolicy = "enqueue"
)

// ParseDeletePolicy accepts "cancel" and "enqueue".
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch p := DeletePolicy(s); p {
	case DeletePolicyCancel, DeletePolicyEnqueue:
		return p, nil
	}
	return "", fmt.Errorf("unknown delete policy %q", s)
}

const lastResultKey = "sync.last_result"

// LocalStore is the part of store.Store the coordinator relies on.
type LocalStore interface {
	Collections() []string
	Put(ctx context.Context, collection string, rec models.Record) error
	Get(ctx context.Context, collection, id string) (*models.Record, error)
	GetAll(ctx context.Context, collection string) ([]models.Record, error)
	GetByIndex(ctx context.Context, collection, index string, value any) ([]models.Record, error)
	Delete(ctx context.Context, collection, id string) error

	AppendPendingChange(ctx context.Context, op models.Operation, collection string, payload models.Record) (models.PendingChange, error)
	ListPendingChanges(ctx context.Context) ([]models.PendingChange, error)
	GetPendingChange(ctx context.Context, changeID string) (*models.PendingChange, error)
	MarkSynced(ctx context.Context, changeID string) error
	CountPendingChanges(ctx context.Context) (int, error)
	HasPendingChanges(ctx context.Context, collection, recordID string) (bool, error)
	RecordFailure(ctx context.Context, changeID, message string) error
	FoldPendingUpdate(ctx context.Context, collection string, rec models.Record) (bool, error)
	CancelUnsyncedCreate(ctx context.Context, collection, recordID string) (bool, error)
	SwapRecordID(ctx context.Context, collection, tempID string, server models.Record) error
	ReplaceCollection(ctx context.Context, collection string, remote []models.Record) error

	GetMeta(ctx context.Context, key string) ([]byte, error)
	SetMeta(ctx context.Context, key string, value []byte) error
}

// Connectivity is the coordinator's view of the connectivity monitor.
type Connectivity interface {
	Status() bool
	OnChange(cb func(online bool)) (unsubscribe func())
}

// Status is a snapshot of sync health for display.
type Status struct {
	Online       bool
	Syncing      bool
	PendingCount int
	// LastResult is nil until the first drain finishes.
	LastResult *models.SyncResult
	// NextRetryAt is zero unless Run has scheduled a retry after a failure.
	NextRetryAt time.Time
}

type Coordinator interface {
	Create(ctx context.Context, collection string, fields map[string]any) (models.Record, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) (models.Record, error)
	Delete(ctx context.Context, collection, id string) error

	GetAll(ctx context.Context, collection string) ([]models.Record, error)
	GetByID(ctx context.Context, collection, id string) (*models.Record, error)
	GetByIndex(ctx context.Context, collection, index string, value any) ([]models.Record, error)

	SyncPendingChanges(ctx context.Context) (models.SyncResult, error)
	Status(ctx context.Context) (Status, error)
	Run(ctx context.Context)
}

type syncCoordinator struct {
	store   LocalStore
	remote  gateway.Gateway
	monitor Connectivity

	log            logging.Logger
	metrics        *Metrics
	now            func() time.Time
	deletePolicy   DeletePolicy
	compact        bool
	requestTimeout time.Duration
	retryInitial   time.Duration
	retryMax       time.Duration
	collections    []string

	// mu serializes mutations and drain dispatches.
	mu      sync.Mutex
	syncing atomic.Bool

	retryMu   sync.Mutex
	nextRetry time.Time
}

type Option func(*syncCoordinator)

func WithLogger(l logging.Logger) Option {
	return func(c *syncCoordinator) { c.log = l }
}

// WithMetrics records coordinator activity in m. A nil m disables metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *syncCoordinator) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *syncCoordinator) { c.now = now }
}

func WithDeletePolicy(p DeletePolicy) Option {
	return func(c *syncCoordinator) { c.deletePolicy = p }
}

// WithCompaction toggles folding of consecutive queued updates of a record.
func WithCompaction(enabled bool) Option {
	return func(c *syncCoordinator) { c.compact = enabled }
}

// WithRequestTimeout bounds every remote call. Zero means no bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *syncCoordinator) { c.requestTimeout = d }
}

// WithBackoff sets the first and the largest delay between automatic drain
// retries.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *syncCoordinator) {
		c.retryInitial = initial
		c.retryMax = max
	}
}

// WithCollections limits the post-drain refresh to the given collections.
func WithCollections(names ...string) Option {
	return func(c *syncCoordinator) { c.collections = names }
}

func NewCoordinator(store LocalStore, remote gateway.Gateway, monitor Connectivity, opts ...Option) Coordinator {
	c := &syncCoordinator{
		store:          store,
		remote:         remote,
		monitor:        monitor,
		log:            logging.Nop(),
		now:            func() time.Time { return time.Now().UTC() },
		deletePolicy:   DeletePolicyCancel,
		compact:        true,
		requestTimeout: 10 * time.Second,
		retryInitial:   time.Second,
		retryMax:       5 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.collections == nil {
		c.collections = store.Collections()
	}
	return c
}

func (c *syncCoordinator) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

// Create stores the record under a temporary id and, when online, tries to
// create it remotely. On success the server copy replaces the temporary one
// and is returned; otherwise the create is queued and the temporary record
// is returned.
func (c *syncCoordinator) Create(ctx context.Context, collection string, fields map[string]any) (models.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	id, err := models.NewTempID(now)
	if err != nil {
		return models.Record{}, err
	}
	rec := models.Record{
		ID:            id,
		CreatedAt:     now,
		UpdatedAt:     now,
		OfflineOrigin: true,
		Fields:        models.StripReserved(fields),
	}
	if err := c.store.Put(ctx, collection, rec); err != nil {
		return models.Record{}, err
	}

	if c.monitor.Status() {
		server, err := c.createRemote(ctx, collection, rec)
		if err == nil {
			c.metrics.mutation(collection, models.OpCreate, outcomeRemote)
			return server, nil
		}
		c.log.Warn(ctx, "remote create failed, queueing", "collection", collection, "id", rec.ID, "error", err)
	}

	if _, err := c.store.AppendPendingChange(ctx, models.OpCreate, collection, rec); err != nil {
		return models.Record{}, err
	}
	c.metrics.mutation(collection, models.OpCreate, outcomeQueued)
	c.notePending(ctx)
	return rec, nil
}

func (c *syncCoordinator) createRemote(ctx context.Context, collection string, rec models.Record) (models.Record, error) {
	rctx, cancel := c.remoteCtx(ctx)
	defer cancel()

	server, err := c.remote.Create(rctx, collection, rec.Fields, rec.ID)
	if err != nil {
		return models.Record{}, err
	}
	if err := c.store.SwapRecordID(ctx, collection, rec.ID, server); err != nil {
		return models.Record{}, fmt.Errorf("swap record id: %w", err)
	}
	server.OfflineOrigin = false
	return server, nil
}

// Update merges fields into the stored record. The change goes to the remote
// right away only for confirmed records with nothing queued, so replay order
// per record is kept.
func (c *syncCoordinator) Update(ctx context.Context, collection, id string, fields map[string]any) (models.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, err := c.store.Get(ctx, collection, id)
	if err != nil {
		return models.Record{}, err
	}
	if cur == nil {
		return models.Record{}, fmt.Errorf("%w: %s/%s", common.ErrNotFound, collection, id)
	}

	merged := cur.Merge(fields, c.now())
	if err := c.store.Put(ctx, collection, merged); err != nil {
		return models.Record{}, err
	}

	direct, err := c.canSendNow(ctx, collection, merged)
	if err != nil {
		return models.Record{}, err
	}
	if direct {
		rctx, cancel := c.remoteCtx(ctx)
		server, err := c.remote.Update(rctx, collection, id, models.StripReserved(fields))
		cancel()
		if err == nil {
			c.metrics.mutation(collection, models.OpUpdate, outcomeRemote)
			// A 2xx without a body decodes to an empty record; the local merge
			// is then the best copy until the next refresh.
			if server.ID != id {
				return merged, nil
			}
			server.OfflineOrigin = false
			if err := c.store.Put(ctx, collection, server); err != nil {
				return models.Record{}, err
			}
			return server, nil
		}
		c.log.Warn(ctx, "remote update failed, queueing", "collection", collection, "id", id, "error", err)
	}

	if err := c.queueUpdate(ctx, collection, merged); err != nil {
		return models.Record{}, err
	}
	return merged, nil
}

func (c *syncCoordinator) queueUpdate(ctx context.Context, collection string, rec models.Record) error {
	if c.compact {
		folded, err := c.store.FoldPendingUpdate(ctx, collection, rec)
		if err != nil {
			return err
		}
		if folded {
			c.metrics.mutation(collection, models.OpUpdate, outcomeFolded)
			return nil
		}
	}
	if _, err := c.store.AppendPendingChange(ctx, models.OpUpdate, collection, rec); err != nil {
		return err
	}
	c.metrics.mutation(collection, models.OpUpdate, outcomeQueued)
	c.notePending(ctx)
	return nil
}

// canSendNow reports whether a change of rec may skip the queue.
func (c *syncCoordinator) canSendNow(ctx context.Context, collection string, rec models.Record) (bool, error) {
	if rec.OfflineOrigin || !c.monitor.Status() {
		return false, nil
	}
	queued, err := c.store.HasPendingChanges(ctx, collection, rec.ID)
	if err != nil {
		return false, err
	}
	return !queued, nil
}

// Delete removes the record locally at once. Confirmed records are deleted
// remotely or queued; records the remote never confirmed follow the
// configured DeletePolicy.
func (c *syncCoordinator) Delete(ctx context.Context, collection, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, err := c.store.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	if cur == nil {
		return fmt.Errorf("%w: %s/%s", common.ErrNotFound, collection, id)
	}

	direct, err := c.canSendNow(ctx, collection, *cur)
	if err != nil {
		return err
	}
	if err := c.store.Delete(ctx, collection, id); err != nil {
		return err
	}

	if cur.OfflineOrigin && c.deletePolicy == DeletePolicyCancel {
		cancelled, err := c.store.CancelUnsyncedCreate(ctx, collection, id)
		if err != nil {
			return err
		}
		if cancelled {
			c.metrics.mutation(collection, models.OpDelete, outcomeCancelled)
			c.notePending(ctx)
			return nil
		}
	}

	if direct {
		rctx, cancel := c.remoteCtx(ctx)
		err := c.remote.Delete(rctx, collection, id)
		cancel()
		if err == nil || errors.Is(err, gateway.ErrNotFound) {
			c.metrics.mutation(collection, models.OpDelete, outcomeRemote)
			return nil
		}
		c.log.Warn(ctx, "remote delete failed, queueing", "collection", collection, "id", id, "error", err)
	}

	if _, err := c.store.AppendPendingChange(ctx, models.OpDelete, collection, *cur); err != nil {
		return err
	}
	c.metrics.mutation(collection, models.OpDelete, outcomeQueued)
	c.notePending(ctx)
	return nil
}

func (c *syncCoordinator) notePending(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	if n, err := c.store.CountPendingChanges(ctx); err == nil {
		c.metrics.setPending(n)
	}
}

func (c *syncCoordinator) GetAll(ctx context.Context, collection string) ([]models.Record, error) {
	return c.store.GetAll(ctx, collection)
}

// GetByID returns nil when the record does not exist locally.
func (c *syncCoordinator) GetByID(ctx context.Context, collection, id string) (*models.Record, error) {
	return c.store.Get(ctx, collection, id)
}

func (c *syncCoordinator) GetByIndex(ctx context.Context, collection, index string, value any) ([]models.Record, error) {
	return c.store.GetByIndex(ctx, collection, index, value)
}
