package db

import (
	"fmt"

	"gorm.io/driver/postgres"
)

// Postgres is a database that stores data in a Postgres database. It lets
// several devices share one record of persisted assets.
type Postgres struct {
	// URL is a libpq connection string or postgres:// URL.
	URL string
	// Config
	BatchSize int

	gormStore
}

// NewPostgres creates a new Postgres database.
func NewPostgres(url string, batchSize int) (Database, error) {
	if url == "" {
		return nil, fmt.Errorf("'url' is required")
	}
	return &Postgres{
		URL:       url,
		BatchSize: batchSize,
	}, nil
}

// Connect connects to the database.
func (p *Postgres) Connect() error {
	if err := p.open(postgres.Open(p.URL), p.BatchSize); err != nil {
		return fmt.Errorf("failed to connect postgres database: %w", err)
	}
	return nil
}
