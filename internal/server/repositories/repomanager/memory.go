package repomanager

import (
	"context"

	"github.com/dmitrijs2005/medsync/internal/server/repositories/records"
)

// MemoryRepositoryManager keeps everything in process memory; data is lost
// on restart.
type MemoryRepositoryManager struct {
	records *records.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{records: records.NewMemoryRepository()}
}

func (m *MemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *MemoryRepositoryManager) Records() records.Repository {
	return m.records
}

func (m *MemoryRepositoryManager) Close() error {
	return nil
}
