// Package services holds the client's sync coordinator.
//
// The coordinator is the only component that mutates the local store on
// behalf of callers. Every mutation is applied locally first and then either
// sent to the remote right away (when online) or queued in the pending change
// log. Queued changes are replayed by SyncPendingChanges, in log order, when
// connectivity returns; Run drives those replays automatically with
// exponential backoff between failed attempts.
//
// Connectivity problems are never surfaced to callers of Create, Update and
// Delete. Only structural errors are: common.ErrNotFound,
// common.ErrInvalidQuery and common.ErrUnknownCollection.
package services
