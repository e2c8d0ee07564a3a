package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/magic"
	"github.com/apex/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const probeLimit = 8

func (s *Scanner) markerPath(asset string) string {
	return filepath.Join(filepath.Dir(asset), "."+filepath.Base(asset)+s.layout.MarkerSuffix)
}

// Mark records asset as injected.
func (s *Scanner) Mark(asset string) error {
	marker := s.markerPath(asset)
	if err := afero.WriteFile(s.fs, marker, nil, 0o644); err != nil {
		return fmt.Errorf("failed to mark %s as injected: %w", asset, err)
	}
	return nil
}

// Unmark removes the injection marker of asset.
func (s *Scanner) Unmark(asset string) error {
	if err := s.fs.Remove(s.markerPath(asset)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to unmark %s: %w", asset, err)
	}
	return nil
}

// IsInjected reports whether asset was placed by an injection.
func (s *Scanner) IsInjected(asset string) bool {
	ok, err := afero.Exists(s.fs, s.markerPath(asset))
	return err == nil && ok
}

// InjectedAssets returns the injected assets found in the bundle root and its
// Frameworks directory, sorted. Markers whose asset is gone are ignored.
func (s *Scanner) InjectedAssets(root string) ([]string, error) {
	var assets []string
	for _, dir := range []string{root, s.layout.FrameworksPath(root)} {
		entries, err := afero.ReadDir(s.fs, dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", dir, err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, s.layout.MarkerSuffix) {
				continue
			}
			asset := filepath.Join(dir, strings.TrimSuffix(strings.TrimPrefix(name, "."), s.layout.MarkerSuffix))
			if _, err := Classify(asset); err != nil {
				continue
			}
			if ok, _ := afero.Exists(s.fs, asset); !ok {
				log.WithField("asset", asset).Debug("Ignoring stale injection marker")
				continue
			}
			assets = append(assets, asset)
		}
	}
	sort.Strings(assets)
	return assets, nil
}

// FrameworkMachOs returns the Mach-O binaries of app eligible as injection
// targets: the main executable, framework executables and dylibs found in
// Frameworks. The dummy framework, the trust helper, injected assets and
// backups are skipped.
func (s *Scanner) FrameworkMachOs(app *App) ([]string, error) {
	candidates := []string{app.Executable}

	fwDir := s.layout.FrameworksPath(app.Root)
	entries, err := afero.ReadDir(s.fs, fwDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", fwDir, err)
	}
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(fwDir, name)
		switch {
		case strings.HasPrefix(name, "."),
			s.layout.IsBackup(name),
			name == s.layout.DummyFramework(),
			name == s.layout.TrustHelperFramework(),
			s.IsInjected(path):
			continue
		}
		switch kind, _ := Classify(name); kind {
		case KindFramework:
			if e.IsDir() {
				candidates = append(candidates, s.FrameworkExecutable(path))
			}
		case KindDylib:
			if !e.IsDir() {
				candidates = append(candidates, path)
			}
		}
	}

	var (
		mu     sync.Mutex
		machos []string
		g      errgroup.Group
	)
	g.SetLimit(probeLimit)
	for _, c := range candidates {
		g.Go(func() error {
			ok, err := magic.IsMachOFile(s.fs, c)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					log.WithField("path", c).Debug("Skipping missing binary")
					return nil
				}
				return err
			}
			if ok {
				mu.Lock()
				machos = append(machos, c)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", app.Root, err)
	}

	sort.Strings(machos)
	return machos, nil
}
