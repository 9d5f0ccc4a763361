package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dmitrijs2005/medsync/internal/client/gateway"
	"github.com/dmitrijs2005/medsync/internal/client/models"
)

const deferredMessage = "deferred: an earlier change of the record failed"

var errDeferred = errors.New(deferredMessage)

type recordKey struct {
	collection string
	id         string
}

// SyncPendingChanges replays the pending change log against the remote and
// then refreshes every collection from it.
//
// Changes are sent one at a time in log order. A failed change stays queued
// and does not stop the run, but later changes of the same record are held
// back until the next run. The returned error is non-nil only when the run
// did not take place (ErrSyncSkipped) or the local store failed.
func (c *syncCoordinator) SyncPendingChanges(ctx context.Context) (models.SyncResult, error) {
	if !c.syncing.CompareAndSwap(false, true) {
		c.metrics.drain(drainSkipped, 0)
		return models.SyncResult{}, fmt.Errorf("%w: another drain is running", ErrSyncSkipped)
	}
	defer c.syncing.Store(false)

	if !c.monitor.Status() {
		c.metrics.drain(drainSkipped, 0)
		return models.SyncResult{}, fmt.Errorf("%w: offline", ErrSyncSkipped)
	}

	res, err := c.drain(ctx)
	if err != nil {
		c.metrics.drain(drainFailed, res.FinishedAt.Sub(res.StartedAt))
		return res, err
	}

	if data, err := json.Marshal(res); err == nil {
		if err := c.store.SetMeta(ctx, lastResultKey, data); err != nil {
			c.log.Warn(ctx, "failed to persist sync result", "error", err)
		}
	}
	if n, err := c.store.CountPendingChanges(ctx); err == nil {
		c.metrics.setPending(n)
	}

	outcome := drainSucceeded
	if !res.Success {
		outcome = drainFailed
	}
	c.metrics.drain(outcome, res.FinishedAt.Sub(res.StartedAt))
	c.log.Info(ctx, "drain finished",
		"success", res.Success,
		"synced", res.SyncedCount,
		"failed", res.FailedCount,
		"errors", len(res.Errors),
	)
	return res, nil
}

func (c *syncCoordinator) drain(ctx context.Context) (models.SyncResult, error) {
	res := models.SyncResult{StartedAt: c.now(), Errors: []models.SyncError{}}
	finish := func() models.SyncResult {
		res.FinishedAt = c.now()
		res.Success = res.FailedCount == 0 && len(res.Errors) == 0
		return res
	}

	changes, err := c.store.ListPendingChanges(ctx)
	if err != nil {
		return finish(), fmt.Errorf("list pending changes: %w", err)
	}

	renamed := make(map[recordKey]string)
	blocked := make(map[recordKey]bool)

	for _, snap := range changes {
		if err := ctx.Err(); err != nil {
			return finish(), err
		}

		ch, live, err := c.dispatch(ctx, snap.ID, renamed, blocked)
		switch {
		case errors.Is(err, errDeferred):
			res.FailedCount++
			res.Errors = append(res.Errors, syncError(ch, deferredMessage))
			c.metrics.dispatch(ch.Operation, dispatchDeferred)
		case err != nil:
			if ch.ID == "" {
				ch = snap
			}
			blocked[recordKey{ch.Collection, ch.RecordID}] = true
			res.FailedCount++
			res.Errors = append(res.Errors, syncError(ch, err.Error()))
			c.metrics.dispatch(ch.Operation, dispatchFailed)
			c.log.Warn(ctx, "pending change failed",
				"change", ch.ID,
				"operation", ch.Operation,
				"collection", ch.Collection,
				"id", ch.RecordID,
				"error", err,
			)
			if err := c.store.RecordFailure(ctx, ch.ID, err.Error()); err != nil {
				c.log.Error(ctx, "failed to record sync failure", "change", ch.ID, "error", err)
			}
		case !live:
			c.metrics.dispatch(snap.Operation, dispatchSuperseded)
			c.log.Debug(ctx, "pending change resolved locally during drain", "change", snap.ID)
		default:
			res.SyncedCount++
			c.metrics.dispatch(ch.Operation, dispatchOK)
		}
	}

	for _, collection := range c.collections {
		if err := ctx.Err(); err != nil {
			return finish(), err
		}
		if err := c.refresh(ctx, collection); err != nil {
			c.log.Warn(ctx, "refresh failed", "collection", collection, "error", err)
			res.Errors = append(res.Errors, models.SyncError{
				Operation:  models.OpRefresh,
				Collection: collection,
				Message:    err.Error(),
			})
		}
	}

	return finish(), nil
}

// dispatch reloads a change and sends it, then marks it synced. Mutations
// hold c.mu too, so the copy sent is the latest one: a change cancelled or
// synced since the log was listed is skipped (live is false) and a folded
// update goes out with its newest payload. A create also installs the
// server id locally and in renamed.
func (c *syncCoordinator) dispatch(ctx context.Context, changeID string, renamed map[recordKey]string, blocked map[recordKey]bool) (ch models.PendingChange, live bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, err := c.store.GetPendingChange(ctx, changeID)
	if err != nil {
		return models.PendingChange{}, false, fmt.Errorf("reload pending change: %w", err)
	}
	if cur == nil || cur.Synced {
		return models.PendingChange{}, false, nil
	}
	ch = *cur
	if id, ok := renamed[recordKey{ch.Collection, ch.RecordID}]; ok {
		ch.RecordID = id
		ch.Payload.ID = id
	}
	if blocked[recordKey{ch.Collection, ch.RecordID}] {
		return ch, true, errDeferred
	}

	rctx, cancel := c.remoteCtx(ctx)
	defer cancel()

	switch ch.Operation {
	case models.OpCreate:
		server, err := c.remote.Create(rctx, ch.Collection, ch.Payload.Fields, ch.RecordID)
		if err != nil {
			return ch, true, err
		}
		if err := c.store.SwapRecordID(ctx, ch.Collection, ch.RecordID, server); err != nil {
			return ch, true, fmt.Errorf("swap record id: %w", err)
		}
		renamed[recordKey{ch.Collection, ch.RecordID}] = server.ID
	case models.OpUpdate:
		if _, err := c.remote.Update(rctx, ch.Collection, ch.RecordID, ch.Payload.Fields); err != nil {
			return ch, true, err
		}
	case models.OpDelete:
		err := c.remote.Delete(rctx, ch.Collection, ch.RecordID)
		if err != nil && !errors.Is(err, gateway.ErrNotFound) {
			return ch, true, err
		}
	default:
		return ch, true, fmt.Errorf("unsupported operation %q", ch.Operation)
	}

	if err := c.store.MarkSynced(ctx, ch.ID); err != nil {
		return ch, true, fmt.Errorf("mark synced: %w", err)
	}
	return ch, true, nil
}

// refresh replaces the local copy of collection with the remote list. The
// list is fetched before anything local is touched.
func (c *syncCoordinator) refresh(ctx context.Context, collection string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rctx, cancel := c.remoteCtx(ctx)
	list, err := c.remote.List(rctx, collection)
	cancel()
	if err != nil {
		return err
	}
	return c.store.ReplaceCollection(ctx, collection, list)
}

func syncError(ch models.PendingChange, msg string) models.SyncError {
	return models.SyncError{
		ChangeID:   ch.ID,
		Operation:  ch.Operation,
		Collection: ch.Collection,
		RecordID:   ch.RecordID,
		Message:    msg,
	}
}

func (c *syncCoordinator) Status(ctx context.Context) (Status, error) {
	n, err := c.store.CountPendingChanges(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		Online:       c.monitor.Status(),
		Syncing:      c.syncing.Load(),
		PendingCount: n,
		NextRetryAt:  c.retryAt(),
	}

	data, err := c.store.GetMeta(ctx, lastResultKey)
	if err != nil {
		return Status{}, err
	}
	if data != nil {
		var last models.SyncResult
		if err := json.Unmarshal(data, &last); err != nil {
			return Status{}, fmt.Errorf("decode last sync result: %w", err)
		}
		st.LastResult = &last
	}
	return st, nil
}

func (c *syncCoordinator) retryAt() time.Time {
	c.retryMu.Lock()
	defer c.retryMu.Unlock()
	return c.nextRetry
}

func (c *syncCoordinator) setRetryAt(t time.Time) {
	c.retryMu.Lock()
	c.nextRetry = t
	c.retryMu.Unlock()
}

func (c *syncCoordinator) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInitial
	b.MaxInterval = c.retryMax
	b.Reset()
	return b
}

// Run drains automatically until ctx is done: once at start when online with
// queued changes, on every offline to online transition, and after a failed
// drain once its backoff delay has passed.
func (c *syncCoordinator) Run(ctx context.Context) {
	trigger := make(chan struct{}, 1)
	kick := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	unsubscribe := c.monitor.OnChange(func(online bool) {
		if online {
			kick()
		}
	})
	defer unsubscribe()

	if c.monitor.Status() {
		n, err := c.store.CountPendingChanges(ctx)
		if err != nil {
			c.log.Error(ctx, "failed to count pending changes", "error", err)
		}
		c.metrics.setPending(n)
		if n > 0 {
			kick()
		}
	}

	bo := c.newBackoff()
	var retry <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-trigger:
		case <-retry:
		}
		retry = nil

		res, err := c.SyncPendingChanges(ctx)
		switch {
		case errors.Is(err, ErrSyncSkipped):
			c.log.Debug(ctx, "automatic drain skipped", "reason", err)
			c.setRetryAt(time.Time{})
		case ctx.Err() != nil:
			return
		case err != nil || !res.Success:
			// The delay never stops growing short of MaxInterval; there is no
			// elapsed-time cap.
			d := bo.NextBackOff()
			c.setRetryAt(c.now().Add(d))
			retry = time.After(d)
			c.log.Info(ctx, "drain incomplete, retry scheduled", "in", d.String(), "error", err)
		default:
			bo.Reset()
			c.setRetryAt(time.Time{})
		}
	}
}
