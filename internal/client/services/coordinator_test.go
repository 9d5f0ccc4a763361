package services

import (
	"context"
	"strings"
	"testing"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeletePolicy(t *testing.T) {
	p, err := ParseDeletePolicy("cancel")
	require.NoError(t, err)
	assert.Equal(t, DeletePolicyCancel, p)

	p, err = ParseDeletePolicy("enqueue")
	require.NoError(t, err)
	assert.Equal(t, DeletePolicyEnqueue, p)

	_, err = ParseDeletePolicy("drop")
	assert.Error(t, err)
}

func TestCreate_OfflineQueuesCreate(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, false)

	rec, err := e.coord.Create(ctx, "patients", map[string]any{"name": "Jane Doe"})
	require.NoError(t, err)
	assert.Regexp(t, `^offline-\d+-.+$`, rec.ID)
	assert.True(t, rec.OfflineOrigin)
	assert.True(t, rec.CreatedAt.Equal(t0))
	assert.True(t, rec.UpdatedAt.Equal(t0))

	got, err := e.coord.GetByID(ctx, "patients", rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Jane Doe", got.Fields["name"])
	assert.True(t, got.OfflineOrigin)

	list := e.pending(t)
	require.Len(t, list, 1)
	assert.Equal(t, models.OpCreate, list[0].Operation)
	assert.Equal(t, "patients", list[0].Collection)
	assert.Equal(t, rec.ID, list[0].RecordID)
	assert.False(t, list[0].Synced)

	assert.Empty(t, e.remote.callLog())
}

func TestCreate_ReservedFieldsAreIgnored(t *testing.T) {
	e := newTestEnv(t, false)

	rec, err := e.coord.Create(context.Background(), "patients", map[string]any{
		"id":            "p1",
		"offlineOrigin": false,
		"name":          "Jane",
	})
	require.NoError(t, err)
	assert.True(t, models.IsTempID(rec.ID))
	assert.True(t, rec.OfflineOrigin)
	assert.Equal(t, map[string]any{"name": "Jane"}, rec.Fields)
}

func TestCreate_OnlineSwapsToServerRecord(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, true)

	rec, err := e.coord.Create(ctx, "patients", map[string]any{"name": "Jane"})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", rec.ID)
	assert.False(t, rec.OfflineOrigin)

	calls := e.remote.callLog()
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0], "create patients offline-"), calls[0])

	all, err := e.coord.GetAll(ctx, "patients")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "srv-1", all[0].ID)
	assert.False(t, all[0].OfflineOrigin)
	assert.Equal(t, "Jane", all[0].Fields["name"])

	assert.Empty(t, e.pending(t))
}

func TestCreate_OnlineFailureQueues(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, true)
	e.remote.failOn("create patients *", errRemote)

	rec, err := e.coord.Create(ctx, "patients", map[string]any{"name": "Jane"})
	require.NoError(t, err)
	assert.True(t, models.IsTempID(rec.ID))
	assert.True(t, rec.OfflineOrigin)

	list := e.pending(t)
	require.Len(t, list, 1)
	assert.Equal(t, models.OpCreate, list[0].Operation)
}

func TestCreate_UnknownCollection(t *testing.T) {
	e := newTestEnv(t, true)

	_, err := e.coord.Create(context.Background(), "wards", map[string]any{"name": "A"})
	require.ErrorIs(t, err, common.ErrUnknownCollection)
	assert.Empty(t, e.remote.callLog())
	assert.Empty(t, e.pending(t))
}

func TestUpdate_OnlineSuccess(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, true)
	e.seed(t, "patients", "p1", map[string]any{"name": "John", "status": "stable"})

	rec, err := e.coord.Update(ctx, "patients", "p1", map[string]any{"status": "critical"})
	require.NoError(t, err)
	assert.Equal(t, "critical", rec.Fields["status"])
	assert.Equal(t, "John", rec.Fields["name"])

	got, err := e.coord.GetByID(ctx, "patients", "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "critical", got.Fields["status"])
	assert.False(t, got.OfflineOrigin)

	assert.Empty(t, e.pending(t))

	remote, ok := e.remote.get("patients", "p1")
	require.True(t, ok)
	assert.Equal(t, "critical", remote.Fields["status"])
}

func TestUpdate_OnlineFailureQueues(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, true)
	e.seed(t, "patients", "p1", map[string]any{"name": "John", "status": "stable"})
	e.remote.failOn("update patients p1", errRemote)

	rec, err := e.coord.Update(ctx, "patients", "p1", map[string]any{"status": "critical"})
	require.NoError(t, err)
	assert.Equal(t, "critical", rec.Fields["status"])

	list := e.pending(t)
	require.Len(t, list, 1)
	assert.Equal(t, models.OpUpdate, list[0].Operation)
	assert.Equal(t, "p1", list[0].RecordID)
	assert.Equal(t, "critical", list[0].Payload.Fields["status"])
	assert.False(t, list[0].Synced)
}

func TestUpdate_NotFound(t *testing.T) {
	e := newTestEnv(t, true)

	_, err := e.coord.Update(context.Background(), "patients", "nope", map[string]any{"status": "x"})
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.Empty(t, e.remote.callLog())
}

func TestUpdate_QueuedWhileRecordHasPendingChanges(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, true)
	e.seed(t, "patients", "p1", map[string]any{"status": "stable"})

	e.monitor.SetOnline(false)
	_, err := e.coord.Update(ctx, "patients", "p1", map[string]any{"status": "serious"})
	require.NoError(t, err)

	e.monitor.SetOnline(true)
	_, err = e.coord.Update(ctx, "patients", "p1", map[string]any{"status": "critical"})
	require.NoError(t, err)

	assert.Empty(t, e.remote.callLog(), "a queued record must not be updated out of order")

	list := e.pending(t)
	require.Len(t, list, 1, "consecutive updates are folded")
	assert.Equal(t, "critical", list[0].Payload.Fields["status"])

	res, err := e.coord.SyncPendingChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SyncedCount)

	remote, _ := e.remote.get("patients", "p1")
	assert.Equal(t, "critical", remote.Fields["status"])
}

func TestUpdate_CompactionDisabled(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, false, WithCompaction(false))
	e.seed(t, "patients", "p1", map[string]any{"status": "stable"})

	for _, status := range []string{"serious", "critical"} {
		_, err := e.coord.Update(ctx, "patients", "p1", map[string]any{"status": status})
		require.NoError(t, err)
	}

	list := e.pending(t)
	require.Len(t, list, 2)
	assert.Equal(t, "serious", list[0].Payload.Fields["status"])
	assert.Equal(t, "critical", list[1].Payload.Fields["status"])
}

func TestUpdate_NeverFoldsIntoCreate(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, false)

	rec, err := e.coord.Create(ctx, "patients", map[string]any{"name": "Jane"})
	require.NoError(t, err)
	_, err = e.coord.Update(ctx, "patients", rec.ID, map[string]any{"status": "stable"})
	require.NoError(t, err)

	list := e.pending(t)
	require.Len(t, list, 2)
	assert.Equal(t, models.OpCreate, list[0].Operation)
	assert.Equal(t, models.OpUpdate, list[1].Operation)
	assert.Equal(t, map[string]any{"name": "Jane"}, list[0].Payload.Fields)

	got, err := e.coord.GetByID(ctx, "patients", rec.ID)
	require.NoError(t, err)
	assert.True(t, got.OfflineOrigin)
	assert.Equal(t, "stable", got.Fields["status"])
}

func TestDelete_Confirmed(t *testing.T) {
	ctx := context.Background()

	t.Run("online", func(t *testing.T) {
		e := newTestEnv(t, true)
		e.seed(t, "patients", "p1", map[string]any{"name": "John"})

		require.NoError(t, e.coord.Delete(ctx, "patients", "p1"))

		got, err := e.coord.GetByID(ctx, "patients", "p1")
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Equal(t, 0, e.remote.count("patients"))
		assert.Empty(t, e.pending(t))
	})

	t.Run("remote already gone", func(t *testing.T) {
		e := newTestEnv(t, true)
		require.NoError(t, e.store.Put(ctx, "patients", models.Record{ID: "p1", CreatedAt: t0, UpdatedAt: t0}))

		require.NoError(t, e.coord.Delete(ctx, "patients", "p1"))
		assert.Empty(t, e.pending(t))
	})

	t.Run("remote failure queues", func(t *testing.T) {
		e := newTestEnv(t, true)
		e.seed(t, "patients", "p1", map[string]any{"name": "John"})
		e.remote.failOn("delete patients p1", errRemote)

		require.NoError(t, e.coord.Delete(ctx, "patients", "p1"))

		got, err := e.coord.GetByID(ctx, "patients", "p1")
		require.NoError(t, err)
		assert.Nil(t, got, "local deletes are immediate")

		list := e.pending(t)
		require.Len(t, list, 1)
		assert.Equal(t, models.OpDelete, list[0].Operation)

		e.remote.recover("delete patients p1")
		res, err := e.coord.SyncPendingChanges(ctx)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 0, e.remote.count("patients"))
	})

	t.Run("offline queues", func(t *testing.T) {
		e := newTestEnv(t, false)
		e.seed(t, "patients", "p1", map[string]any{"name": "John"})

		require.NoError(t, e.coord.Delete(ctx, "patients", "p1"))
		list := e.pending(t)
		require.Len(t, list, 1)
		assert.Equal(t, models.OpDelete, list[0].Operation)
		assert.Empty(t, e.remote.callLog())
	})
}

func TestDelete_NotFound(t *testing.T) {
	e := newTestEnv(t, true)

	err := e.coord.Delete(context.Background(), "patients", "nope")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestDelete_UnconfirmedCancelPolicy(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, false)

	rec, err := e.coord.Create(ctx, "patients", map[string]any{"name": "Jane"})
	require.NoError(t, err)
	_, err = e.coord.Update(ctx, "patients", rec.ID, map[string]any{"status": "stable"})
	require.NoError(t, err)

	require.NoError(t, e.coord.Delete(ctx, "patients", rec.ID))

	got, err := e.coord.GetByID(ctx, "patients", rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, e.pending(t), "the create and its update are cancelled")

	e.monitor.SetOnline(true)
	res, err := e.coord.SyncPendingChanges(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.SyncedCount)
	for _, call := range e.remote.callLog() {
		assert.True(t, strings.HasPrefix(call, "list "), "unexpected remote call %q", call)
	}
	assert.Equal(t, 0, e.remote.count("patients"))
}

func TestDelete_UnconfirmedEnqueuePolicy(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, false, WithDeletePolicy(DeletePolicyEnqueue))

	rec, err := e.coord.Create(ctx, "patients", map[string]any{"name": "Jane"})
	require.NoError(t, err)
	_, err = e.coord.Update(ctx, "patients", rec.ID, map[string]any{"status": "stable"})
	require.NoError(t, err)
	require.NoError(t, e.coord.Delete(ctx, "patients", rec.ID))

	list := e.pending(t)
	require.Len(t, list, 3)
	assert.Equal(t, models.OpDelete, list[2].Operation)
	assert.Equal(t, rec.ID, list[2].RecordID)

	e.monitor.SetOnline(true)
	res, err := e.coord.SyncPendingChanges(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.SyncedCount)

	assert.Contains(t, e.remote.callLog(), "update patients srv-1")
	assert.Contains(t, e.remote.callLog(), "delete patients srv-1")
	assert.Equal(t, 0, e.remote.count("patients"))

	all, err := e.coord.GetAll(ctx, "patients")
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, e.pending(t))
}

func TestGetByIndex(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, false)
	e.seed(t, "patients", "p1", map[string]any{"status": "critical"})
	e.seed(t, "patients", "p2", map[string]any{"status": "stable"})

	got, err := e.coord.GetByIndex(ctx, "patients", "status", "critical")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)

	_, err = e.coord.GetByIndex(ctx, "patients", "status", nil)
	require.ErrorIs(t, err, common.ErrInvalidQuery)

	_, err = e.coord.GetByIndex(ctx, "patients", "name", "John")
	require.ErrorIs(t, err, common.ErrInvalidQuery)

	assert.Empty(t, e.remote.callLog(), "reads never touch the remote")
}
