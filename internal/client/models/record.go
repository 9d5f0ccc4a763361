// Package models defines the client-side data model: generic records, the
// pending change log entries and drain results.
package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"strconv"
	"time"

	"github.com/dmitrijs2005/medsync/internal/common"
)

// TempIDPrefix starts every locally generated record id.
const TempIDPrefix = "offline-"

// Reserved record keys. They are carried by Record fields and never stored
// among the domain fields.
const (
	KeyID            = "id"
	KeyCreatedAt     = "createdAt"
	KeyUpdatedAt     = "updatedAt"
	KeyOfflineOrigin = "offlineOrigin"
)

var tempIDRe = regexp.MustCompile(`^offline-\d+-.+$`)

// Record is a generic entity of a collection.
//
// OfflineOrigin is true while the record's current copy has never been
// confirmed by the remote. Fields holds the domain data and never contains
// the reserved keys.
type Record struct {
	ID            string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	OfflineOrigin bool
	Fields        map[string]any
}

// NewTempID builds an id of the form offline-{unixMillis}-{random}.
func NewTempID(now time.Time) (string, error) {
	suffix, err := common.MakeRandHexString(5)
	if err != nil {
		return "", fmt.Errorf("temp id: %w", err)
	}
	return fmt.Sprintf("%s%d-%s", TempIDPrefix, now.UnixMilli(), suffix), nil
}

// IsTempID reports whether id was generated locally.
func IsTempID(id string) bool {
	return tempIDRe.MatchString(id)
}

// StripReserved returns a copy of fields without the reserved keys.
func StripReserved(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case KeyID, KeyCreatedAt, KeyUpdatedAt, KeyOfflineOrigin:
			continue
		}
		out[k] = v
	}
	return out
}

// Clone returns a copy whose Fields map can be modified independently.
func (r Record) Clone() Record {
	c := r
	c.Fields = maps.Clone(r.Fields)
	if c.Fields == nil {
		c.Fields = map[string]any{}
	}
	return c
}

// Merge overlays fields onto a copy of r and bumps UpdatedAt.
func (r Record) Merge(fields map[string]any, now time.Time) Record {
	c := r.Clone()
	maps.Copy(c.Fields, StripReserved(fields))
	c.UpdatedAt = now
	return c
}

// MarshalJSON flattens the record into a single object.
func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+4)
	maps.Copy(m, r.Fields)
	m[KeyID] = r.ID
	m[KeyCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	m[KeyUpdatedAt] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	m[KeyOfflineOrigin] = r.OfflineOrigin
	return json.Marshal(m)
}

// UnmarshalJSON accepts the flat form written by MarshalJSON and by the
// remote. Numeric ids are converted to strings; timestamps may be RFC 3339
// strings or Unix milliseconds.
func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}
	if m == nil {
		return fmt.Errorf("%w: null record", common.ErrInvalidPayload)
	}

	var out Record
	switch id := m[KeyID].(type) {
	case string:
		out.ID = id
	case float64:
		out.ID = strconv.FormatFloat(id, 'f', -1, 64)
	case nil:
	default:
		return fmt.Errorf("%w: id of type %T", common.ErrInvalidPayload, id)
	}

	var err error
	if out.CreatedAt, err = parseTime(m[KeyCreatedAt]); err != nil {
		return fmt.Errorf("%w: createdAt: %v", common.ErrInvalidPayload, err)
	}
	if out.UpdatedAt, err = parseTime(m[KeyUpdatedAt]); err != nil {
		return fmt.Errorf("%w: updatedAt: %v", common.ErrInvalidPayload, err)
	}
	if b, ok := m[KeyOfflineOrigin].(bool); ok {
		out.OfflineOrigin = b
	}
	out.Fields = StripReserved(m)

	*r = out
	return nil
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case string:
		if t == "" {
			return time.Time{}, nil
		}
		return time.Parse(time.RFC3339Nano, t)
	case float64:
		return time.UnixMilli(int64(t)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported type %T", v)
	}
}
