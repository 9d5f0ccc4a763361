package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/dbx"
	"github.com/dmitrijs2005/medsync/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, idempotency_key, data, created_at, updated_at`

func (r *PostgresRepository) Insert(ctx context.Context, rec *models.Record) (bool, error) {
	data, err := json.Marshal(rec.Fields)
	if err != nil {
		return false, fmt.Errorf("failed to encode record: %w", err)
	}

	query := `
		INSERT INTO records (collection, id, idempotency_key, data, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4::jsonb, $5, $6)
		ON CONFLICT (collection, idempotency_key) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.Collection, rec.ID, rec.IdempotencyKey, string(data), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) FindByIdempotencyKey(ctx context.Context, collection, key string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE collection = $1 AND idempotency_key = $2`
	return r.scanOne(collection, r.db.QueryRowContext(ctx, query, collection, key))
}

func (r *PostgresRepository) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE collection = $1 AND id = $2`
	return r.scanOne(collection, r.db.QueryRowContext(ctx, query, collection, id))
}

func (r *PostgresRepository) Merge(ctx context.Context, collection, id string, fields map[string]any, now time.Time) (*models.Record, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}

	query := `
		UPDATE records SET data = data || $3::jsonb, updated_at = $4
		WHERE collection = $1 AND id = $2
		RETURNING ` + recordColumns
	return r.scanOne(collection, r.db.QueryRowContext(ctx, query, collection, id, string(data), now))
}

func (r *PostgresRepository) Delete(ctx context.Context, collection, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", common.ErrNotFound, collection, id)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, collection string) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE collection = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(collection, rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) scanOne(collection string, row *sql.Row) (*models.Record, error) {
	rec, err := scanRecord(collection, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(collection string, s scanner) (*models.Record, error) {
	var (
		rec  = models.Record{Collection: collection}
		key  sql.NullString
		data []byte
	)
	if err := s.Scan(&rec.ID, &key, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	rec.IdempotencyKey = key.String
	if err := json.Unmarshal(data, &rec.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", rec.ID, err)
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	return &rec, nil
}
