package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/utils"
	"github.com/HuuDungg/TrollFools-Framework-Selected/pkg/bundle"
	"github.com/apex/log"
)

// Eject removes assets from the bundle. With desist set the assets are
// recorded as not to be injected again, otherwise they are recorded as
// persisted. Once no injected asset remains every modified Mach-O is restored
// from its backup.
func (m *Manager) Eject(ctx context.Context, assets []string, desist bool) error {
	if len(assets) == 0 {
		return ErrNoAssets
	}
	return m.eject(ctx, assets, assets, desist)
}

// EjectAll ejects every injected asset. With desist set the persisted assets
// of the app are desisted too.
func (m *Manager) EjectAll(ctx context.Context, desist bool) error {
	assets, err := m.Scanner.InjectedAssets(m.app.Root)
	if err != nil {
		return err
	}
	recorded := assets
	if desist {
		persisted, err := m.Store.PersistedPaths(m.app.ID)
		if err != nil {
			return err
		}
		recorded = utils.Union(assets, persisted)
	}

	if len(assets) == 0 {
		if desist && len(recorded) > 0 {
			log.WithField("app", m.app.ID).Infof("Desisting %d persisted assets", len(recorded))
			return m.Store.Desist(m.app.ID, recorded)
		}
		log.WithField("app", m.app.ID).Info("Nothing to eject")
		return nil
	}
	return m.eject(ctx, assets, recorded, desist)
}

func (m *Manager) eject(ctx context.Context, assets, recorded []string, desist bool) error {
	if err := m.Terminator.Terminate(ctx, m.app); err != nil {
		return fmt.Errorf("failed to terminate %s: %w", m.app.ID, err)
	}

	if desist {
		if err := m.Store.Desist(m.app.ID, recorded); err != nil {
			log.WithError(err).Warn("Failed to desist assets")
		}
	} else if err := m.Store.Persist(m.app.ID, recorded); err != nil {
		log.WithError(err).Warn("Failed to persist assets")
	}

	// only assets carrying an injection marker are touched; anything else
	// belongs to the app itself
	var bundles, dylibs []string
	for _, a := range assets {
		kind, err := bundle.Classify(a)
		switch {
		case err != nil:
			log.WithError(err).Warn("Skipping asset")
		case !m.Scanner.IsInjected(a):
			log.WithField("asset", a).Warn("Not an injected asset")
		case kind == bundle.KindBundle:
			bundles = append(bundles, a)
		default:
			dylibs = append(dylibs, a)
		}
	}

	for _, b := range bundles {
		utils.Indent(log.Info, 2)(fmt.Sprintf("Removing %s", filepath.Base(b)))
		m.removeAsset(b)
	}

	if len(dylibs) == 0 {
		return nil
	}

	targets, err := m.modifiedMachOs()
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: no modified Mach-O in %s", ErrNoEligibleFramework, m.app.Root)
	}

	if m.Files.Exists(m.dummyPath()) {
		return m.ejectViaDummy(dylibs, targets)
	}
	return m.ejectLegacy(dylibs, targets)
}

// removeAsset deletes an asset and its marker, logging failures.
func (m *Manager) removeAsset(asset string) {
	if err := m.Files.Remove(asset, true); err != nil {
		log.WithError(err).Warnf("Failed to remove %s", asset)
		return
	}
	if err := m.Scanner.Unmark(asset); err != nil {
		log.WithError(err).Warnf("Failed to unmark %s", asset)
	}
}

func (m *Manager) remaining() (bool, error) {
	left, err := m.Scanner.InjectedAssets(m.app.Root)
	if err != nil {
		return false, err
	}
	return len(left) > 0, nil
}

func (m *Manager) ejectViaDummy(dylibs, targets []string) error {
	exe := m.dummyExecutable()
	for _, d := range dylibs {
		utils.Indent(log.Info, 2)(fmt.Sprintf("Removing %s", filepath.Base(d)))
		if name, err := m.Scanner.InstallName(d); err != nil {
			log.WithError(err).Warnf("Failed to get install name of %s", d)
		} else if err := m.Patcher.RemoveLoadCommand(exe, name); err != nil {
			log.WithError(err).Warnf("Failed to unlink %s", name)
		}
		m.removeAsset(d)
	}

	left, err := m.remaining()
	if err != nil {
		return err
	}
	if left {
		return m.retrust(exe)
	}

	log.WithField("app", m.app.ID).Info("Restoring modified Mach-Os")
	for _, t := range targets {
		if err := m.Patcher.RemoveLoadCommand(t, m.Layout.DummyInstallName()); err != nil {
			log.WithError(err).Warnf("Failed to unlink dummy framework from %s", t)
		}
		if err := m.retrust(t); err != nil {
			log.WithError(err).Warnf("Failed to re-sign %s", t)
		}
	}
	errs := m.restore(targets)
	if err := m.Files.Remove(m.dummyPath(), true); err != nil {
		errs = append(errs, err)
	}
	if err := m.Files.Remove(m.trustHelperPath(), true); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ejectLegacy unlinks every asset from every modified target. Unlike the
// dummy path any patcher failure aborts, leaving the asset in place.
func (m *Manager) ejectLegacy(dylibs, targets []string) error {
	for _, d := range dylibs {
		utils.Indent(log.Info, 2)(fmt.Sprintf("Removing %s", filepath.Base(d)))
		name, err := m.Scanner.InstallName(d)
		if err != nil {
			return err
		}
		for _, t := range targets {
			if err := m.Patcher.RemoveLoadCommand(t, name); err != nil {
				return fmt.Errorf("failed to unlink %s from %s: %w", name, filepath.Base(t), err)
			}
		}
		m.removeAsset(d)
	}

	left, err := m.remaining()
	if err != nil {
		return err
	}
	if left {
		for _, t := range targets {
			if err := m.retrust(t); err != nil {
				return err
			}
		}
		return nil
	}

	log.WithField("app", m.app.ID).Info("Restoring modified Mach-Os")
	for _, t := range targets {
		if err := m.retrust(t); err != nil {
			log.WithError(err).Warnf("Failed to re-sign %s", t)
		}
	}
	errs := m.restore(targets)
	if err := m.Files.Remove(m.trustHelperPath(), true); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// restore moves every target's backup back in place.
func (m *Manager) restore(targets []string) []error {
	var errs []error
	for _, t := range targets {
		if err := m.Files.RestoreFromBackup(t); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := m.Patcher.SetOwnerToSystemInstaller(t); err != nil {
			log.WithError(err).Warnf("Failed to chown %s", t)
		}
	}
	return errs
}
