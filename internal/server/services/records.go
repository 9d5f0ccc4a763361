// Package services implements the reference server's record operations on
// top of a records.Repository.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/server/models"
	"github.com/dmitrijs2005/medsync/internal/server/repositories/records"
	"github.com/google/uuid"
)

type RecordService struct {
	repo      records.Repository
	catalogue *common.Catalogue
	now       func() time.Time
	newID     func() string
}

func NewRecordService(repo records.Repository, catalogue *common.Catalogue) *RecordService {
	return &RecordService{
		repo:      repo,
		catalogue: catalogue,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

func (s *RecordService) check(collection string) error {
	_, err := s.catalogue.Lookup(collection)
	return err
}

// Create stores a new record with a server-assigned id. Repeating a create
// with the same idempotency key returns the record created first.
func (s *RecordService) Create(ctx context.Context, collection string, fields map[string]any, idempotencyKey string) (*models.Record, error) {
	if err := s.check(collection); err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, collection, idempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
	}

	now := s.now()
	rec := &models.Record{
		Collection:     collection,
		ID:             s.newID(),
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
		Fields:         models.CleanFields(fields),
	}
	inserted, err := s.repo.Insert(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// a concurrent create with the same key won
		return s.repo.FindByIdempotencyKey(ctx, collection, idempotencyKey)
	}
	return rec, nil
}

// Update merges fields into the record.
func (s *RecordService) Update(ctx context.Context, collection, id string, fields map[string]any) (*models.Record, error) {
	if err := s.check(collection); err != nil {
		return nil, err
	}
	rec, err := s.repo.Merge(ctx, collection, id, models.CleanFields(fields), s.now())
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

func (s *RecordService) Delete(ctx context.Context, collection, id string) error {
	if err := s.check(collection); err != nil {
		return err
	}
	return s.repo.Delete(ctx, collection, id)
}

func (s *RecordService) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	if err := s.check(collection); err != nil {
		return nil, err
	}
	rec, err := s.repo.Get(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

func (s *RecordService) List(ctx context.Context, collection string) ([]*models.Record, error) {
	if err := s.check(collection); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, collection)
}
