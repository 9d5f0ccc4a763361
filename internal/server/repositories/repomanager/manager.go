// Package repomanager selects and owns the reference server's storage
// backend.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/medsync/internal/server/repositories/records"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Records() records.Repository
	Close() error
}

// New returns a PostgreSQL manager for a non-empty dsn and an in-memory one
// otherwise.
func New(dsn string) (RepositoryManager, error) {
	if dsn == "" {
		return NewMemoryRepositoryManager(), nil
	}
	m, err := NewPostgresRepositoryManager(dsn)
	if err != nil {
		return nil, err
	}
	return m, nil
}
