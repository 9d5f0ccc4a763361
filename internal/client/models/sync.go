package models

import "time"

// OpRefresh tags errors raised while refreshing a collection from the remote.
const OpRefresh Operation = "refresh"

// SyncError describes one failed step of a drain.
type SyncError struct {
	ChangeID   string    `json:"changeId,omitempty"`
	Operation  Operation `json:"operation"`
	Collection string    `json:"collection"`
	RecordID   string    `json:"recordId,omitempty"`
	Message    string    `json:"message"`
}

// SyncResult summarizes a drain run. FailedCount counts pending changes that
// stay unsynced; refresh errors only show up in Errors.
type SyncResult struct {
	Success     bool        `json:"success"`
	SyncedCount int         `json:"syncedCount"`
	FailedCount int         `json:"failedCount"`
	Errors      []SyncError `json:"errors"`
	StartedAt   time.Time   `json:"startedAt"`
	FinishedAt  time.Time   `json:"finishedAt"`
}
