//go:build unix

package macho

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SetOwnerToSystemInstaller gives path to the installer user so the system
// keeps treating the bundle as installed.
func (p *Patcher) SetOwnerToSystemInstaller(path string) error {
	if err := unix.Lchown(path, p.conf.UID, p.conf.GID); err != nil {
		return fmt.Errorf("failed to chown %s to %d:%d: %w", path, p.conf.UID, p.conf.GID, err)
	}
	return nil
}
