package models

import "time"

// Operation is the kind of mutation a pending change replays.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is one of the replayable operations.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// PendingChange is an entry of the append-only change log.
//
// Seq orders entries by insertion. RecordID is the id of the record the
// change applies to; it follows the record when a temporary id is replaced
// by the server id. Entries are never removed, only flagged Synced. Cancelled
// entries are flagged Synced as well and were resolved locally without a
// remote call.
type PendingChange struct {
	ID         string
	Seq        int64
	Operation  Operation
	Collection string
	RecordID   string
	Payload    Record
	Timestamp  time.Time
	Synced     bool
	Cancelled  bool
	Attempts   int
	LastError  string
}
