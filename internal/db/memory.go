package db

import (
	"encoding/gob"
	"errors"
	"os"
	"sort"
	"sync"
)

// Memory is a database that stores data in memory. When Path is set the
// records are loaded from and saved to a gob snapshot.
type Memory struct {
	// Assets maps an app identifier to its asset paths and whether they are persisted.
	Assets map[string]map[string]bool
	Path   string

	mu sync.Mutex
}

// NewInMemory creates a new in-memory database.
func NewInMemory(path string) (Database, error) {
	return &Memory{
		Assets: make(map[string]map[string]bool),
		Path:   path,
	}, nil
}

// Connect loads the snapshot, if any.
func (m *Memory) Connect() error {
	if m.Path == "" {
		return nil
	}
	f, err := os.Open(m.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()
	m.mu.Lock()
	defer m.mu.Unlock()
	return gob.NewDecoder(f).Decode(&m.Assets)
}

func (m *Memory) set(appID string, paths []string, persisted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Assets[appID] == nil {
		m.Assets[appID] = make(map[string]bool)
	}
	for _, p := range paths {
		m.Assets[appID][p] = persisted
	}
	return nil
}

// Persist records paths as persisted for appID.
func (m *Memory) Persist(appID string, paths []string) error {
	return m.set(appID, paths, true)
}

// Desist records paths as desisted for appID.
func (m *Memory) Desist(appID string, paths []string) error {
	return m.set(appID, paths, false)
}

func (m *Memory) paths(appID string, persisted bool) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var paths []string
	for p, ok := range m.Assets[appID] {
		if ok == persisted {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// PersistedPaths returns the persisted paths of appID.
func (m *Memory) PersistedPaths(appID string) ([]string, error) {
	return m.paths(appID, true), nil
}

// DesistedPaths returns the desisted paths of appID.
func (m *Memory) DesistedPaths(appID string) ([]string, error) {
	return m.paths(appID, false), nil
}

// Close writes the snapshot, if any.
func (m *Memory) Close() error {
	if m.Path == "" {
		return nil
	}
	f, err := os.Create(m.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	m.mu.Lock()
	defer m.mu.Unlock()
	return gob.NewEncoder(f).Encode(m.Assets)
}
