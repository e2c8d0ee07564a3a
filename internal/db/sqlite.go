package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
)

// Sqlite is a database that stores data in a sqlite database.
type Sqlite struct {
	URL string
	// Config
	BatchSize int

	gormStore
}

// NewSqlite creates a new Sqlite database.
func NewSqlite(path string, batchSize int) (Database, error) {
	if path == "" {
		return nil, fmt.Errorf("'path' is required")
	}
	return &Sqlite{
		URL:       path,
		BatchSize: batchSize,
	}, nil
}

// Connect connects to the database.
func (s *Sqlite) Connect() error {
	if err := os.MkdirAll(filepath.Dir(s.URL), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := s.open(sqlite.Open(s.URL), s.BatchSize); err != nil {
		return fmt.Errorf("failed to connect sqlite database: %w", err)
	}
	return nil
}
