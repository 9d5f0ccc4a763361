package pending

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/dbx"
)

const selectColumns = `
	SELECT seq, id, operation, collection, record_id, payload, timestamp,
	       synced, cancelled, attempts, last_error
	FROM pending_changes`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Append(ctx context.Context, ch *models.PendingChange) error {
	if !ch.Operation.Valid() {
		return fmt.Errorf("invalid operation %q", ch.Operation)
	}
	payload, err := json.Marshal(ch.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_changes (id, operation, collection, record_id, payload, timestamp, synced)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, ch.ID, string(ch.Operation), ch.Collection, ch.RecordID, string(payload), ch.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to append pending change: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read pending change seq: %w", err)
	}
	ch.Seq = seq
	ch.Synced = false
	return nil
}

func (r *SQLiteRepository) ListUnsynced(ctx context.Context) ([]models.PendingChange, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` WHERE synced = 0 ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending changes: %w", err)
	}
	return collect(rows)
}

func (r *SQLiteRepository) ListUnsyncedFor(ctx context.Context, collection, recordID string) ([]models.PendingChange, error) {
	rows, err := r.db.QueryContext(ctx,
		selectColumns+` WHERE synced = 0 AND collection = ? AND record_id = ? ORDER BY seq`, collection, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending changes for %s/%s: %w", collection, recordID, err)
	}
	return collect(rows)
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.PendingChange, error) {
	ch, err := scanChange(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending change %s: %w", id, err)
	}
	return &ch, nil
}

func (r *SQLiteRepository) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_changes WHERE synced = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending changes: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE pending_changes SET synced = 1 WHERE id = ? AND synced = 0`, id); err != nil {
		return fmt.Errorf("failed to mark %s synced: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) CancelRecord(ctx context.Context, collection, recordID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_changes SET synced = 1, cancelled = 1
		WHERE synced = 0 AND collection = ? AND record_id = ?
	`, collection, recordID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending changes for %s/%s: %w", collection, recordID, err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) RecordFailure(ctx context.Context, id, message string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE pending_changes SET attempts = attempts + 1, last_error = ? WHERE id = ?`, message, id)
	if err != nil {
		return fmt.Errorf("failed to record failure of %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) ReplacePayload(ctx context.Context, id string, payload models.Record) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `UPDATE pending_changes SET payload = ? WHERE id = ? AND synced = 0`, string(data), id)
	if err != nil {
		return fmt.Errorf("failed to replace payload of %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) RewriteRecordID(ctx context.Context, collection, oldID, newID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_changes
		SET record_id = ?, payload = json_set(payload, '$.id', ?)
		WHERE synced = 0 AND collection = ? AND record_id = ?
	`, newID, newID, collection, oldID)
	if err != nil {
		return 0, fmt.Errorf("failed to rewrite %s/%s: %w", collection, oldID, err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChange(s scanner) (models.PendingChange, error) {
	var (
		ch          models.PendingChange
		op, payload string
		ts          string
	)
	err := s.Scan(&ch.Seq, &ch.ID, &op, &ch.Collection, &ch.RecordID, &payload, &ts,
		&ch.Synced, &ch.Cancelled, &ch.Attempts, &ch.LastError)
	if err != nil {
		return models.PendingChange{}, err
	}
	ch.Operation = models.Operation(op)
	if err := json.Unmarshal([]byte(payload), &ch.Payload); err != nil {
		return models.PendingChange{}, fmt.Errorf("decode payload of %s: %w", ch.ID, err)
	}
	if ch.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return models.PendingChange{}, fmt.Errorf("bad timestamp of %s: %w", ch.ID, err)
	}
	return ch, nil
}

func collect(rows *sql.Rows) ([]models.PendingChange, error) {
	defer rows.Close()

	result := make([]models.PendingChange, 0)
	for rows.Next() {
		ch, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending change: %w", err)
		}
		result = append(result, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending changes: %w", err)
	}
	return result, nil
}
