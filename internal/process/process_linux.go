package process

import (
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

func listProcesses() ([]Process, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}
	var procs []Process
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		// processes of other users or that already exited are skipped
		exe, err := os.Readlink(filepath.Join("/proc", e.Name(), "exe"))
		if err != nil {
			continue
		}
		procs = append(procs, Process{PID: pid, Executable: exe})
	}
	return procs, nil
}

func killProcess(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}
