package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	DefaultMinOS = "14.0"
	// InstallerUID and InstallerGID are the ids of _installd on iOS.
	InstallerUID = 33
	InstallerGID = 33
)

// Layout holds the names and paths shared by the dylib builder and the
// lifecycle manager. It is built once with NewLayout and passed by value.
type Layout struct {
	DummyName        string
	DummyBundleID    string
	TrustHelperName  string
	FrameworksDir    string
	BackupSuffix     string
	MarkerSuffix     string
	MinimumOSVersion string
}

// NewLayout returns the layout used by every TrollFools-injected bundle.
func NewLayout(minOS string) Layout {
	if minOS == "" {
		minOS = DefaultMinOS
	}
	return Layout{
		DummyName:        "TrollFoolsDummy",
		DummyBundleID:    "wiki.qaq.TrollFools.DummyFramework",
		TrustHelperName:  "CydiaSubstrate",
		FrameworksDir:    "Frameworks",
		BackupSuffix:     ".troll-fools.bak",
		MarkerSuffix:     ".troll-fools",
		MinimumOSVersion: minOS,
	}
}

// DummyFramework returns the dummy framework directory name (TrollFoolsDummy.framework)
func (l Layout) DummyFramework() string { return l.DummyName + ".framework" }

// TrustHelperFramework returns the trust helper framework directory name
func (l Layout) TrustHelperFramework() string { return l.TrustHelperName + ".framework" }

// DummyInstallName is the install name the dummy dylib is built with and
// that target Mach-Os reference with LC_LOAD_DYLIB.
func (l Layout) DummyInstallName() string {
	return FrameworkInstallName(l.DummyName, l.DummyName)
}

// IsBackup reports whether path names a backup file.
func (l Layout) IsBackup(path string) bool {
	return len(path) > len(l.BackupSuffix) && strings.HasSuffix(path, l.BackupSuffix)
}

// FrameworksPath returns <bundle>/Frameworks
func (l Layout) FrameworksPath(bundleRoot string) string {
	return filepath.Join(bundleRoot, l.FrameworksDir)
}

// DummyPath returns <bundle>/Frameworks/TrollFoolsDummy.framework
func (l Layout) DummyPath(bundleRoot string) string {
	return filepath.Join(l.FrameworksPath(bundleRoot), l.DummyFramework())
}

// DummyExecutable returns the dummy framework's Mach-O path inside bundleRoot
func (l Layout) DummyExecutable(bundleRoot string) string {
	return filepath.Join(l.DummyPath(bundleRoot), l.DummyName)
}

// TrustHelperPath returns <bundle>/Frameworks/CydiaSubstrate.framework
func (l Layout) TrustHelperPath(bundleRoot string) string {
	return filepath.Join(l.FrameworksPath(bundleRoot), l.TrustHelperFramework())
}

// FrameworkInstallName returns @rpath/<name>.framework/<executable>
func FrameworkInstallName(name, executable string) string {
	return fmt.Sprintf("@rpath/%s.framework/%s", name, executable)
}
