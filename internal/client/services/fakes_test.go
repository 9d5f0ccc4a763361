package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/connectivity"
	"github.com/dmitrijs2005/medsync/internal/client/gateway"
	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/store"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/stretchr/testify/require"
)

var (
	t0         = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	errRemote  = fmt.Errorf("%w: 503 Service Unavailable", gateway.ErrUnavailable)
	errMissing = fmt.Errorf("%w: %w", gateway.ErrUnavailable, gateway.ErrNotFound)
)

// fakeRemote is an in-memory remote with per-call failure injection.
// Calls are named "op collection id"; creates use the idempotency key as id
// and lists are named "list collection". A failure registered for
// "op collection *" applies to every id.
type fakeRemote struct {
	mu    sync.Mutex
	data  map[string]map[string]models.Record
	keys  map[string]string
	fail  map[string]error
	calls []string
	seq   int

	// listGate, when set, blocks List until it is closed.
	listGate chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		data: make(map[string]map[string]models.Record),
		keys: make(map[string]string),
		fail: make(map[string]error),
	}
}

func (f *fakeRemote) failOn(call string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[call] = err
}

func (f *fakeRemote) recover(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fail, call)
}

func (f *fakeRemote) enter(op, collection, id string) error {
	call := op + " " + collection
	if id != "" {
		call += " " + id
	}
	f.calls = append(f.calls, call)
	if err, ok := f.fail[call]; ok {
		return err
	}
	return f.fail[op+" "+collection+" *"]
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) put(collection string, rec models.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[collection] == nil {
		f.data[collection] = make(map[string]models.Record)
	}
	f.data[collection][rec.ID] = rec.Clone()
}

func (f *fakeRemote) get(collection, id string) (models.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.data[collection][id]
	return rec, ok
}

func (f *fakeRemote) count(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data[collection])
}

func (f *fakeRemote) Create(ctx context.Context, collection string, fields map[string]any, key string) (models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("create", collection, key); err != nil {
		return models.Record{}, err
	}
	if id, ok := f.keys[key]; ok {
		return f.data[collection][id].Clone(), nil
	}
	f.seq++
	rec := models.Record{
		ID:        fmt.Sprintf("srv-%d", f.seq),
		CreatedAt: t0,
		UpdatedAt: t0,
		Fields:    maps.Clone(fields),
	}
	if f.data[collection] == nil {
		f.data[collection] = make(map[string]models.Record)
	}
	f.data[collection][rec.ID] = rec
	f.keys[key] = rec.ID
	return rec.Clone(), nil
}

func (f *fakeRemote) Update(ctx context.Context, collection, id string, fields map[string]any) (models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("update", collection, id); err != nil {
		return models.Record{}, err
	}
	rec, ok := f.data[collection][id]
	if !ok {
		return models.Record{}, errMissing
	}
	rec = rec.Merge(fields, t0.Add(time.Minute))
	f.data[collection][id] = rec
	return rec.Clone(), nil
}

func (f *fakeRemote) Delete(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete", collection, id); err != nil {
		return err
	}
	if _, ok := f.data[collection][id]; !ok {
		return errMissing
	}
	delete(f.data[collection], id)
	return nil
}

func (f *fakeRemote) List(ctx context.Context, collection string) ([]models.Record, error) {
	f.mu.Lock()
	gate := f.listGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("list", collection, ""); err != nil {
		return nil, err
	}
	out := make([]models.Record, 0, len(f.data[collection]))
	for _, rec := range f.data[collection] {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	return nil
}

// hookedStore runs afterList once, right after the pending log is listed,
// to interleave a mutation with a drain that already holds its snapshot.
type hookedStore struct {
	*store.Store
	afterList func()
}

func (h *hookedStore) ListPendingChanges(ctx context.Context) ([]models.PendingChange, error) {
	list, err := h.Store.ListPendingChanges(ctx)
	if hook := h.afterList; hook != nil {
		h.afterList = nil
		hook()
	}
	return list, err
}

type testEnv struct {
	store   *store.Store
	hooks   *hookedStore
	remote  *fakeRemote
	monitor *connectivity.Monitor
	coord   *syncCoordinator
}

func newTestEnv(t *testing.T, online bool, opts ...Option) *testEnv {
	t.Helper()
	cat, err := common.NewCatalogue(common.HospitalCollections)
	require.NoError(t, err)
	st, err := store.Open(context.Background(), ":memory:", cat)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	e := &testEnv{
		store:   st,
		hooks:   &hookedStore{Store: st},
		remote:  newFakeRemote(),
		monitor: connectivity.NewMonitor(online, nil),
	}
	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	e.coord = NewCoordinator(e.hooks, e.remote, e.monitor, opts...).(*syncCoordinator)
	return e
}

// seed stores a confirmed record both locally and remotely.
func (e *testEnv) seed(t *testing.T, collection, id string, fields map[string]any) {
	t.Helper()
	rec := models.Record{ID: id, CreatedAt: t0, UpdatedAt: t0, Fields: fields}
	require.NoError(t, e.store.Put(context.Background(), collection, rec))
	e.remote.put(collection, rec)
}

func (e *testEnv) pending(t *testing.T) []models.PendingChange {
	t.Helper()
	list, err := e.store.ListPendingChanges(context.Background())
	require.NoError(t, err)
	return list
}

func isSkipped(err error) bool {
	return errors.Is(err, ErrSyncSkipped)
}
