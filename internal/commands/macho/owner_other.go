//go:build !unix

package macho

import (
	"fmt"
	"runtime"
)

func (p *Patcher) SetOwnerToSystemInstaller(path string) error {
	return fmt.Errorf("failed to chown %s: not supported on %s", path, runtime.GOOS)
}
