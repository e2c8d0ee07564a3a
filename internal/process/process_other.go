//go:build !linux && !darwin

package process

import (
	"fmt"
	"runtime"
)

func listProcesses() ([]Process, error) {
	return nil, fmt.Errorf("listing processes is not supported on %s", runtime.GOOS)
}

func killProcess(pid int) error {
	return fmt.Errorf("killing processes is not supported on %s", runtime.GOOS)
}
