package records

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/server/models"
)

// MemoryRepository keeps records in process memory. It is used when the
// server runs without a database.
type MemoryRepository struct {
	mu   sync.RWMutex
	data map[string]map[string]*models.Record
	keys map[string]map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		data: make(map[string]map[string]*models.Record),
		keys: make(map[string]map[string]string),
	}
}

func clone(rec *models.Record) *models.Record {
	c := *rec
	c.Fields = maps.Clone(rec.Fields)
	if c.Fields == nil {
		c.Fields = map[string]any{}
	}
	return &c
}

func (m *MemoryRepository) Insert(ctx context.Context, rec *models.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.IdempotencyKey != "" {
		if _, used := m.keys[rec.Collection][rec.IdempotencyKey]; used {
			return false, nil
		}
	}
	if _, exists := m.data[rec.Collection][rec.ID]; exists {
		return false, fmt.Errorf("failed to insert record: duplicate id %s/%s", rec.Collection, rec.ID)
	}

	if m.data[rec.Collection] == nil {
		m.data[rec.Collection] = make(map[string]*models.Record)
		m.keys[rec.Collection] = make(map[string]string)
	}
	m.data[rec.Collection][rec.ID] = clone(rec)
	if rec.IdempotencyKey != "" {
		m.keys[rec.Collection][rec.IdempotencyKey] = rec.ID
	}
	return true, nil
}

func (m *MemoryRepository) FindByIdempotencyKey(ctx context.Context, collection, key string) (*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.keys[collection][key]
	if !ok {
		return nil, common.ErrNotFound
	}
	rec, ok := m.data[collection][id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return clone(rec), nil
}

func (m *MemoryRepository) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.data[collection][id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return clone(rec), nil
}

func (m *MemoryRepository) Merge(ctx context.Context, collection, id string, fields map[string]any, now time.Time) (*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.data[collection][id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	maps.Copy(rec.Fields, fields)
	rec.UpdatedAt = now
	return clone(rec), nil
}

func (m *MemoryRepository) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.data[collection][id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", common.ErrNotFound, collection, id)
	}
	delete(m.data[collection], id)
	if rec.IdempotencyKey != "" {
		delete(m.keys[collection], rec.IdempotencyKey)
	}
	return nil
}

func (m *MemoryRepository) List(ctx context.Context, collection string) ([]*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*models.Record, 0, len(m.data[collection]))
	for _, rec := range m.data[collection] {
		result = append(result, clone(rec))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}
