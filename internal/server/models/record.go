// Package models defines the server-side record representation.
package models

import (
	"encoding/json"
	"maps"
	"time"
)

// Reserved keys of the wire form. They are managed by the server and never
// stored among the record fields.
const (
	KeyID            = "id"
	KeyCreatedAt     = "createdAt"
	KeyUpdatedAt     = "updatedAt"
	KeyOfflineOrigin = "offlineOrigin"
)

// Record is a stored entity of a collection.
type Record struct {
	Collection     string
	ID             string
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Fields         map[string]any
}

// CleanFields drops the reserved keys from client-supplied fields.
func CleanFields(fields map[string]any) map[string]any {
	out := maps.Clone(fields)
	if out == nil {
		out = map[string]any{}
	}
	delete(out, KeyID)
	delete(out, KeyCreatedAt)
	delete(out, KeyUpdatedAt)
	delete(out, KeyOfflineOrigin)
	return out
}

// MarshalJSON renders the flat wire form: the fields plus id and timestamps.
func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+3)
	maps.Copy(m, r.Fields)
	m[KeyID] = r.ID
	m[KeyCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	m[KeyUpdatedAt] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	return json.Marshal(m)
}
