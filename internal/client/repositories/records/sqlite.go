package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/dbx"
)

const selectColumns = `SELECT id, data, offline_origin, created_at, updated_at FROM records`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Put(ctx context.Context, collection string, rec models.Record) error {
	fields := rec.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidPayload, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO records (collection, id, data, offline_origin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = excluded.data,
			offline_origin = excluded.offline_origin,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, collection, rec.ID, string(data), rec.OfflineOrigin, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", collection, rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE collection = ? AND id = ?`, collection, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return &rec, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context, collection string) ([]models.Record, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` WHERE collection = ? ORDER BY created_at, id`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	return collect(rows)
}

// FindByField returns records whose JSON field equals value. The field name
// is interpolated into the statement, so it must satisfy
// common.ValidIdentifier; this also lets SQLite use the expression index
// created by EnsureIndex.
func (r *SQLiteRepository) FindByField(ctx context.Context, collection, field string, value any) ([]models.Record, error) {
	if !common.ValidIdentifier(field) {
		return nil, fmt.Errorf("%w: field %q", common.ErrInvalidQuery, field)
	}
	arg, err := sqlValue(value)
	if err != nil {
		return nil, err
	}

	query := selectColumns + ` WHERE collection = ? AND ` + jsonPath(field) + ` = ? ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, collection, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s by %s: %w", collection, field, err)
	}
	return collect(rows)
}

func (r *SQLiteRepository) Delete(ctx context.Context, collection, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context, collection string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("failed to clear %s: %w", collection, err)
	}
	return nil
}

// EnsureIndex creates an expression index over (collection, field).
func (r *SQLiteRepository) EnsureIndex(ctx context.Context, field string) error {
	if !common.ValidIdentifier(field) {
		return fmt.Errorf("%w: field %q", common.ErrInvalidQuery, field)
	}
	stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_records_%s ON records (collection, %s)`, field, jsonPath(field))
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create index on %s: %w", field, err)
	}
	return nil
}

func jsonPath(field string) string {
	return `json_extract(data, '$.` + field + `')`
}

// sqlValue converts a lookup value to what json_extract yields for the
// same JSON value: booleans become 1/0, numbers int64 or float64.
func sqlValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil value", common.ErrInvalidQuery)
	case string:
		return x, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		if f, err := x.Float64(); err == nil {
			return f, nil
		}
		return x.String(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported value type %T", common.ErrInvalidQuery, v)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (models.Record, error) {
	var (
		rec              models.Record
		data             string
		created, updated string
	)
	if err := s.Scan(&rec.ID, &data, &rec.OfflineOrigin, &created, &updated); err != nil {
		return models.Record{}, err
	}
	if err := json.Unmarshal([]byte(data), &rec.Fields); err != nil {
		return models.Record{}, fmt.Errorf("decode %s: %w", rec.ID, err)
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	var err error
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return models.Record{}, err
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return models.Record{}, err
	}
	return rec, nil
}

func collect(rows *sql.Rows) ([]models.Record, error) {
	defer rows.Close()

	result := make([]models.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return result, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}
