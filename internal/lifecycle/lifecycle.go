// Package lifecycle injects assets into application bundles and ejects them
// again.
//
// The first injection into a bundle creates the TrollFoolsDummy framework and
// links it from one of the bundle's own Mach-Os, which is backed up first.
// Later injections only add LC_LOAD_DYLIB commands to the dummy. Bundles
// patched by older releases link their assets from the targets directly;
// those are handled as Legacy.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/config"
	"github.com/HuuDungg/TrollFools-Framework-Selected/pkg/bundle"
)

var (
	// ErrNoAssets is returned when an operation is given no assets.
	ErrNoAssets = errors.New("no assets given")
	// ErrNoEligibleFramework is returned when no Mach-O in the bundle can
	// carry or already carries the injection.
	ErrNoEligibleFramework = errors.New("no eligible framework found")
)

// Mode is how assets are linked into a bundle.
type Mode int

const (
	NotInjected Mode = iota
	Legacy
	ViaDummyFramework
)

func (m Mode) String() string {
	switch m {
	case NotInjected:
		return "not injected"
	case Legacy:
		return "legacy"
	case ViaDummyFramework:
		return "via dummy framework"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// State is the injection state of a bundle, derived from its files.
type State struct {
	Mode           Mode
	InjectedAssets []string
	ModifiedMachOs []string
}

// Patcher edits Mach-O binaries.
type Patcher interface {
	SetInstallName(machoPath, name string) error
	AddLoadCommand(machoPath, dylib string) error
	RemoveLoadCommand(machoPath, dylib string) error
	BypassTrustCheck(machoPath string) error
	SetOwnerToSystemInstaller(path string) error
}

// Files performs file operations inside the bundle.
type Files interface {
	Exists(path string) bool
	Size(path string) (int64, error)
	MkdirAll(path string) error
	WriteFile(path string, data []byte, perm os.FileMode) error
	Copy(src, dst string) error
	Remove(path string, recursive bool) error
	HasBackup(path string) bool
	Backup(path string) error
	RestoreFromBackup(path string) error
}

// Scanner inspects the bundle.
type Scanner interface {
	FrameworkMachOs(app *bundle.App) ([]string, error)
	InjectedAssets(root string) ([]string, error)
	IsInjected(asset string) bool
	Mark(asset string) error
	Unmark(asset string) error
	InstallName(path string) (string, error)
	BinaryPath(path string) (string, error)
}

// Store records which assets should be re-injected.
type Store interface {
	Persist(appID string, paths []string) error
	Desist(appID string, paths []string) error
	PersistedPaths(appID string) ([]string, error)
}

// Terminator stops the running instances of an app.
type Terminator interface {
	Terminate(ctx context.Context, app *bundle.App) error
}

// Builder builds the dummy framework executable.
type Builder interface {
	BuildFatDylib(installName string) ([]byte, error)
}

// Options are the collaborators of a Manager.
type Options struct {
	Layout config.Layout
	// Substrate is the source directory of the trust helper framework.
	// It is not copied when empty.
	Substrate string

	Patcher    Patcher
	Files      Files
	Scanner    Scanner
	Store      Store
	Terminator Terminator
	Builder    Builder
}

// Manager injects into and ejects from one application bundle. It is not
// safe for concurrent use.
type Manager struct {
	app *bundle.App
	Options
}

// NewManager returns the Manager of app.
func NewManager(app *bundle.App, opts Options) *Manager {
	return &Manager{app: app, Options: opts}
}

// App returns the managed bundle.
func (m *Manager) App() *bundle.App { return m.app }

func (m *Manager) dummyPath() string       { return m.Layout.DummyPath(m.app.Root) }
func (m *Manager) dummyExecutable() string { return m.Layout.DummyExecutable(m.app.Root) }
func (m *Manager) trustHelperPath() string { return m.Layout.TrustHelperPath(m.app.Root) }

// State probes the bundle and returns its injection state.
func (m *Manager) State() (*State, error) {
	assets, err := m.Scanner.InjectedAssets(m.app.Root)
	if err != nil {
		return nil, err
	}
	modified, err := m.modifiedMachOs()
	if err != nil {
		return nil, err
	}

	state := &State{
		Mode:           NotInjected,
		InjectedAssets: assets,
		ModifiedMachOs: modified,
	}
	switch {
	case m.Files.Exists(m.dummyPath()):
		state.Mode = ViaDummyFramework
	case len(modified) > 0:
		state.Mode = Legacy
	}
	return state, nil
}

// modifiedMachOs returns the bundle Mach-Os that have a backup.
func (m *Manager) modifiedMachOs() ([]string, error) {
	machos, err := m.Scanner.FrameworkMachOs(m.app)
	if err != nil {
		return nil, err
	}
	var modified []string
	for _, mo := range machos {
		if m.Files.HasBackup(mo) {
			modified = append(modified, mo)
		}
	}
	return modified, nil
}
