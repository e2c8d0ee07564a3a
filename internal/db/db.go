// Package db provides a database interface and implementations.
package db

// Database is the interface that wraps the asset persistence operations.
type Database interface {
	// Connect connects to the database.
	Connect() error

	// Persist records paths as persisted for appID.
	// Existing records for the same paths are updated.
	Persist(appID string, paths []string) error

	// Desist records paths as desisted for appID.
	// Existing records for the same paths are updated.
	Desist(appID string, paths []string) error

	// PersistedPaths returns the persisted paths of appID, sorted.
	PersistedPaths(appID string) ([]string, error)

	// DesistedPaths returns the desisted paths of appID, sorted.
	DesistedPaths(appID string) ([]string, error)

	// Close closes the database.
	Close() error
}
