// Package bundle classifies injectable assets and scans iOS application
// bundles for their Mach-O binaries and previously injected assets.
package bundle

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/config"
	"github.com/HuuDungg/TrollFools-Framework-Selected/pkg/plist"
	"github.com/spf13/afero"
)

// Kind is the category of an injectable asset.
type Kind int

const (
	KindUnknown Kind = iota
	KindBundle
	KindDylib
	KindFramework
)

func (k Kind) String() string {
	switch k {
	case KindBundle:
		return "bundle"
	case KindDylib:
		return "dylib"
	case KindFramework:
		return "framework"
	default:
		return "unknown"
	}
}

// Extension returns the file extension of assets of kind k.
func (k Kind) Extension() string {
	if k == KindUnknown {
		return ""
	}
	return "." + k.String()
}

// ErrUnsupportedAsset is returned for paths that are not a .bundle, .dylib or .framework.
var ErrUnsupportedAsset = errors.New("unsupported asset")

// Classify returns the kind of the asset at path based on its extension.
func Classify(path string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bundle":
		return KindBundle, nil
	case ".dylib":
		return KindDylib, nil
	case ".framework":
		return KindFramework, nil
	default:
		return KindUnknown, fmt.Errorf("%w: %s", ErrUnsupportedAsset, path)
	}
}

// LinksAsDylib reports whether assets of kind k are referenced with LC_LOAD_DYLIB.
func (k Kind) LinksAsDylib() bool {
	return k == KindDylib || k == KindFramework
}

// App is an application bundle on disk.
type App struct {
	ID         string
	Name       string
	Root       string
	Executable string
}

func (a *App) String() string {
	return fmt.Sprintf("%s (%s)", a.ID, a.Root)
}

// Scanner inspects application bundles.
type Scanner struct {
	fs     afero.Fs
	layout config.Layout
}

// NewScanner returns a Scanner reading from fs.
func NewScanner(fs afero.Fs, layout config.Layout) *Scanner {
	return &Scanner{fs: fs, layout: layout}
}

func (s *Scanner) readInfo(dir string) (*plist.AppInfo, error) {
	infoPath := filepath.Join(dir, "Info.plist")
	dat, err := afero.ReadFile(s.fs, infoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", infoPath, err)
	}
	info, err := plist.ParseAppInfo(dat)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", infoPath, err)
	}
	return info, nil
}

// App reads the Info.plist of the .app at root.
func (s *Scanner) App(root string) (*App, error) {
	root = filepath.Clean(root)
	info, err := s.readInfo(root)
	if err != nil {
		return nil, err
	}
	if info.CFBundleExecutable == "" {
		return nil, fmt.Errorf("failed to find CFBundleExecutable in %s", filepath.Join(root, "Info.plist"))
	}
	app := &App{
		ID:         info.CFBundleIdentifier,
		Name:       info.CFBundleDisplayName,
		Root:       root,
		Executable: filepath.Join(root, info.CFBundleExecutable),
	}
	if app.Name == "" {
		app.Name = info.CFBundleName
	}
	if app.ID == "" {
		app.ID = filepath.Base(root)
	}
	return app, nil
}

// FrameworkExecutable returns the Mach-O path of the framework directory dir.
// Without a readable Info.plist the framework name is used.
func (s *Scanner) FrameworkExecutable(dir string) string {
	name := strings.TrimSuffix(filepath.Base(dir), filepath.Ext(dir))
	if info, err := s.readInfo(dir); err == nil && info.CFBundleExecutable != "" {
		name = info.CFBundleExecutable
	}
	return filepath.Join(dir, name)
}

// InstallName returns the @rpath install name of a dylib or framework asset.
func (s *Scanner) InstallName(path string) (string, error) {
	kind, err := Classify(path)
	if err != nil {
		return "", err
	}
	base := filepath.Base(path)
	switch kind {
	case KindDylib:
		return "@rpath/" + base, nil
	case KindFramework:
		name := strings.TrimSuffix(base, filepath.Ext(base))
		return config.FrameworkInstallName(name, filepath.Base(s.FrameworkExecutable(path))), nil
	default:
		return "", fmt.Errorf("%w: %s assets have no install name", ErrUnsupportedAsset, kind)
	}
}

// BinaryPath returns the Mach-O to patch for an asset: the dylib itself or
// the framework's executable.
func (s *Scanner) BinaryPath(path string) (string, error) {
	kind, err := Classify(path)
	if err != nil {
		return "", err
	}
	switch kind {
	case KindDylib:
		return path, nil
	case KindFramework:
		return s.FrameworkExecutable(path), nil
	default:
		return "", fmt.Errorf("%w: %s assets have no binary", ErrUnsupportedAsset, kind)
	}
}
