package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/utils"
	"github.com/HuuDungg/TrollFools-Framework-Selected/pkg/bundle"
	"github.com/HuuDungg/TrollFools-Framework-Selected/pkg/plist"
	"github.com/apex/log"
)

// Inject copies assets into the bundle and links every dylib and framework
// among them. All assets are classified before anything is touched.
func (m *Manager) Inject(ctx context.Context, assets []string) error {
	if len(assets) == 0 {
		return ErrNoAssets
	}
	kinds := make([]bundle.Kind, len(assets))
	for i, a := range assets {
		k, err := bundle.Classify(a)
		if err != nil {
			return err
		}
		kinds[i] = k
	}

	if err := m.Terminator.Terminate(ctx, m.app); err != nil {
		return fmt.Errorf("failed to terminate %s: %w", m.app.ID, err)
	}

	state, err := m.State()
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"app": m.app.ID, "mode": state.Mode}).Info("Injecting")

	// placed holds the assets that were not injected before this call and
	// fresh their install names; both are undone when injection fails.
	var installNames, placed, fresh []string
	for i, a := range assets {
		dst := m.assetPath(a, kinds[i])
		isNew := !m.Scanner.IsInjected(dst)
		name, err := m.placeAsset(a, kinds[i])
		if isNew {
			placed = append(placed, dst)
		}
		if err != nil {
			m.rollback(placed, nil, nil)
			return err
		}
		if name != "" {
			installNames = append(installNames, name)
			if isNew {
				fresh = append(fresh, name)
			}
		}
	}
	if len(installNames) == 0 {
		return nil
	}

	switch state.Mode {
	case NotInjected:
		err = m.injectFirst(installNames)
		if err != nil {
			m.rollback(placed, nil, nil)
		}
	case ViaDummyFramework:
		err = m.linkDummy(installNames)
		if err != nil {
			m.rollback(placed, fresh, []string{m.dummyExecutable()})
		}
	case Legacy:
		targets := state.ModifiedMachOs
		err = m.injectLegacy(targets, installNames)
		if err != nil {
			m.rollback(placed, fresh, targets)
		}
	}
	return err
}

// rollback unlinks names from machos and removes the placed assets. Unlink
// failures are logged; a name may never have been linked.
func (m *Manager) rollback(placed, names, machos []string) {
	for _, mo := range machos {
		for _, name := range names {
			if err := m.Patcher.RemoveLoadCommand(mo, name); err != nil {
				log.WithError(err).Debugf("Failed to unlink %s from %s", name, filepath.Base(mo))
			}
		}
	}
	for _, p := range placed {
		m.removeAsset(p)
	}
}

// assetPath returns where an asset is placed inside the bundle: bundles go to
// the bundle root, dylibs and frameworks to Frameworks.
func (m *Manager) assetPath(src string, kind bundle.Kind) string {
	dir := m.app.Root
	if kind.LinksAsDylib() {
		dir = m.Layout.FrameworksPath(m.app.Root)
	}
	return filepath.Join(dir, filepath.Base(src))
}

// placeAsset copies an asset into the bundle, replacing an older copy, and
// returns its install name for dylibs and frameworks.
func (m *Manager) placeAsset(src string, kind bundle.Kind) (string, error) {
	dst := m.assetPath(src, kind)
	dir := filepath.Dir(dst)
	utils.Indent(log.Info, 2)(fmt.Sprintf("Copying %s", filepath.Base(src)))

	if err := m.Files.MkdirAll(dir); err != nil {
		return "", err
	}
	if m.Files.Exists(dst) {
		if err := m.Files.Remove(dst, true); err != nil {
			return "", err
		}
	}
	if err := m.Files.Copy(src, dst); err != nil {
		return "", err
	}
	if err := m.Scanner.Mark(dst); err != nil {
		return "", err
	}

	if !kind.LinksAsDylib() {
		return "", m.Patcher.SetOwnerToSystemInstaller(dst)
	}

	bin, err := m.Scanner.BinaryPath(dst)
	if err != nil {
		return "", err
	}
	name, err := m.Scanner.InstallName(dst)
	if err != nil {
		return "", err
	}
	if err := m.Patcher.SetInstallName(bin, name); err != nil {
		return "", err
	}
	if err := m.retrust(bin); err != nil {
		return "", err
	}
	if bin != dst {
		if err := m.Patcher.SetOwnerToSystemInstaller(dst); err != nil {
			return "", err
		}
	}
	return name, nil
}

// retrust re-applies the trust bypass and the installer ownership to a
// patched Mach-O.
func (m *Manager) retrust(machoPath string) error {
	if err := m.Patcher.BypassTrustCheck(machoPath); err != nil {
		return err
	}
	return m.Patcher.SetOwnerToSystemInstaller(machoPath)
}

// chooseTarget picks the Mach-O that loads the dummy framework: the smallest
// framework binary, or the main executable when the bundle has none.
func (m *Manager) chooseTarget() (string, error) {
	machos, err := m.Scanner.FrameworkMachOs(m.app)
	if err != nil {
		return "", err
	}
	var (
		target string
		size   int64
	)
	for _, mo := range machos {
		if mo == m.app.Executable {
			continue
		}
		sz, err := m.Files.Size(mo)
		if err != nil {
			log.WithError(err).Warnf("Skipping %s", mo)
			continue
		}
		if target == "" || sz < size {
			target, size = mo, sz
		}
	}
	if target != "" {
		return target, nil
	}
	for _, mo := range machos {
		if mo == m.app.Executable {
			return mo, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoEligibleFramework, m.app.Root)
}

// injectFirst creates the dummy framework and links it from a target.
func (m *Manager) injectFirst(installNames []string) (err error) {
	target, err := m.chooseTarget()
	if err != nil {
		return err
	}
	if err := m.createDummy(); err != nil {
		return err
	}
	var backedUp bool
	hadHelper := m.Files.Exists(m.trustHelperPath())
	defer func() {
		if err == nil {
			return
		}
		if !hadHelper {
			if rerr := m.Files.Remove(m.trustHelperPath(), true); rerr != nil {
				log.WithError(rerr).Warn("Failed to remove trust helper framework")
			}
		}
		if backedUp {
			if rerr := m.Files.RestoreFromBackup(target); rerr != nil {
				log.WithError(rerr).Warnf("Failed to restore %s", target)
			}
		}
		if rerr := m.Files.Remove(m.dummyPath(), true); rerr != nil {
			log.WithError(rerr).Warn("Failed to remove dummy framework")
		}
	}()
	if err := m.linkDummy(installNames); err != nil {
		return err
	}
	if err := m.ensureTrustHelper(); err != nil {
		return err
	}

	log.WithField("target", target).Info("Linking dummy framework")
	if err := m.Files.Backup(target); err != nil {
		return err
	}
	backedUp = true
	if err := m.Patcher.AddLoadCommand(target, m.Layout.DummyInstallName()); err != nil {
		return err
	}
	return m.retrust(target)
}

// createDummy writes the dummy framework. A partially written framework is
// removed again.
func (m *Manager) createDummy() (err error) {
	dir := m.dummyPath()
	log.WithField("path", dir).Info("Creating dummy framework")

	dat, err := m.Builder.BuildFatDylib(m.Layout.DummyInstallName())
	if err != nil {
		return fmt.Errorf("failed to build dummy dylib: %w", err)
	}
	info, err := plist.NewFrameworkInfo(m.Layout.DummyName, m.Layout.DummyBundleID, m.Layout.MinimumOSVersion).Marshal()
	if err != nil {
		return err
	}

	if err := m.Files.MkdirAll(dir); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := m.Files.Remove(dir, true); rerr != nil {
				log.WithError(rerr).Warn("Failed to remove dummy framework")
			}
		}
	}()
	if err := m.Files.WriteFile(m.dummyExecutable(), dat, 0o755); err != nil {
		return err
	}
	if err := m.Files.WriteFile(filepath.Join(dir, "Info.plist"), info, 0o644); err != nil {
		return err
	}
	if err := m.Patcher.SetOwnerToSystemInstaller(dir); err != nil {
		return err
	}
	return m.retrust(m.dummyExecutable())
}

// linkDummy adds an LC_LOAD_DYLIB for every install name to the dummy.
func (m *Manager) linkDummy(installNames []string) error {
	exe := m.dummyExecutable()
	for _, name := range installNames {
		utils.Indent(log.Info, 2)(fmt.Sprintf("Linking %s", name))
		if err := m.Patcher.AddLoadCommand(exe, name); err != nil {
			return err
		}
	}
	return m.retrust(exe)
}

// ensureTrustHelper copies the trust helper framework into the bundle.
func (m *Manager) ensureTrustHelper() error {
	if m.Substrate == "" {
		return nil
	}
	dst := m.trustHelperPath()
	if m.Files.Exists(dst) {
		return nil
	}
	log.WithField("path", dst).Info("Copying trust helper framework")
	if err := m.Files.Copy(m.Substrate, dst); err != nil {
		return err
	}
	if err := m.retrust(filepath.Join(dst, m.Layout.TrustHelperName)); err != nil {
		return err
	}
	return m.Patcher.SetOwnerToSystemInstaller(dst)
}

// injectLegacy links assets straight from the already modified targets.
func (m *Manager) injectLegacy(targets []string, installNames []string) error {
	if len(targets) == 0 {
		target, err := m.chooseTarget()
		if err != nil {
			return err
		}
		targets = []string{target}
	}
	if err := m.ensureTrustHelper(); err != nil {
		return err
	}
	for _, target := range targets {
		if err := m.Files.Backup(target); err != nil {
			return err
		}
		for _, name := range installNames {
			utils.Indent(log.Info, 2)(fmt.Sprintf("Linking %s from %s", name, filepath.Base(target)))
			if err := m.Patcher.AddLoadCommand(target, name); err != nil {
				return err
			}
		}
		if err := m.retrust(target); err != nil {
			return err
		}
	}
	return nil
}
