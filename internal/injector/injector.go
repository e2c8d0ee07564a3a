// Package injector serves inject and eject requests for application bundles.
// Requests for the same bundle are serialized; different bundles proceed in
// parallel.
package injector

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/commands/macho"
	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/config"
	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/db"
	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/fileops"
	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/lifecycle"
	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/process"
	"github.com/HuuDungg/TrollFools-Framework-Selected/pkg/bundle"
	"github.com/HuuDungg/TrollFools-Framework-Selected/pkg/dylib"
	"github.com/apex/log"
	"github.com/spf13/afero"
)

const batchSize = 100

// Status is what the service knows about a bundle.
type Status struct {
	App       *bundle.App
	State     *lifecycle.State
	Persisted []string
	Desisted  []string
}

// Service injects into and ejects from application bundles.
type Service struct {
	conf    *config.Config
	layout  config.Layout
	files   *fileops.FileOps
	scanner *bundle.Scanner
	patcher lifecycle.Patcher
	db      db.Database
	term    lifecycle.Terminator
	builder *dylib.Builder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDatabase returns the database selected by conf.
func NewDatabase(conf *config.Config) (db.Database, error) {
	switch conf.Driver {
	case config.DriverMemory:
		return db.NewInMemory(conf.Database)
	case config.DriverPostgres:
		return db.NewPostgres(conf.Database, batchSize)
	case config.DriverSqlite, "":
		return db.NewSqlite(conf.Database, batchSize)
	default:
		return nil, fmt.Errorf("unknown database driver %q", conf.Driver)
	}
}

// New returns a Service working on the host filesystem.
func New(conf *config.Config) (*Service, error) {
	database, err := NewDatabase(conf)
	if err != nil {
		return nil, err
	}
	if err := database.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	patcher := macho.NewPatcher(macho.PatcherConfig{
		TeamID:   conf.TeamID,
		CTBypass: conf.CTBypass,
		UID:      conf.Installer.UID,
		GID:      conf.Installer.GID,
	})
	return newService(conf, afero.NewOsFs(), database, patcher, process.NewController(conf.KillTimeout))
}

func newService(conf *config.Config, fs afero.Fs, database db.Database, patcher lifecycle.Patcher, term lifecycle.Terminator) (*Service, error) {
	layout := config.NewLayout(conf.MinOS)
	builder, err := dylib.NewBuilder(layout.MinimumOSVersion)
	if err != nil {
		return nil, err
	}
	return &Service{
		conf:    conf,
		layout:  layout,
		files:   fileops.New(fs, layout.BackupSuffix),
		scanner: bundle.NewScanner(fs, layout),
		patcher: patcher,
		db:      database,
		term:    term,
		builder: builder,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Close closes the database.
func (s *Service) Close() error {
	return s.db.Close()
}

// lock takes the lock of the bundle at root and returns its release.
func (s *Service) lock(root string) func() {
	s.mu.Lock()
	l, ok := s.locks[root]
	if !ok {
		l = &sync.Mutex{}
		s.locks[root] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Service) manager(root string) (*lifecycle.Manager, error) {
	app, err := s.scanner.App(root)
	if err != nil {
		return nil, err
	}
	return lifecycle.NewManager(app, lifecycle.Options{
		Layout:     s.layout,
		Substrate:  s.conf.Substrate,
		Patcher:    s.patcher,
		Files:      s.files,
		Scanner:    s.scanner,
		Store:      s.db,
		Terminator: s.term,
		Builder:    s.builder,
	}), nil
}

// Inject injects assets into the .app at root.
func (s *Service) Inject(ctx context.Context, root string, assets []string) error {
	root = filepath.Clean(root)
	defer s.lock(root)()

	m, err := s.manager(root)
	if err != nil {
		return err
	}
	if err := m.Inject(ctx, assets); err != nil {
		return fmt.Errorf("failed to inject into %s: %w", m.App(), err)
	}
	log.WithField("app", m.App().ID).Info("Injected")
	return nil
}

// Eject ejects assets from the .app at root.
func (s *Service) Eject(ctx context.Context, root string, assets []string, desist bool) error {
	root = filepath.Clean(root)
	defer s.lock(root)()

	m, err := s.manager(root)
	if err != nil {
		return err
	}
	if err := m.Eject(ctx, assets, desist); err != nil {
		return fmt.Errorf("failed to eject from %s: %w", m.App(), err)
	}
	log.WithField("app", m.App().ID).Info("Ejected")
	return nil
}

// EjectAll ejects every injected asset from the .app at root.
func (s *Service) EjectAll(ctx context.Context, root string, desist bool) error {
	root = filepath.Clean(root)
	defer s.lock(root)()

	m, err := s.manager(root)
	if err != nil {
		return err
	}
	if err := m.EjectAll(ctx, desist); err != nil {
		return fmt.Errorf("failed to eject all from %s: %w", m.App(), err)
	}
	return nil
}

// Status returns the injection state and the recorded assets of the .app
// at root.
func (s *Service) Status(root string) (*Status, error) {
	root = filepath.Clean(root)
	defer s.lock(root)()

	m, err := s.manager(root)
	if err != nil {
		return nil, err
	}
	state, err := m.State()
	if err != nil {
		return nil, err
	}
	persisted, err := s.db.PersistedPaths(m.App().ID)
	if err != nil {
		return nil, err
	}
	desisted, err := s.db.DesistedPaths(m.App().ID)
	if err != nil {
		return nil, err
	}
	return &Status{
		App:       m.App(),
		State:     state,
		Persisted: persisted,
		Desisted:  desisted,
	}, nil
}
