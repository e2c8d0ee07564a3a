package process

import (
	"github.com/apex/log"
	"golang.org/x/sys/unix"
)

func listProcesses() ([]Process, error) {
	kprocs, err := unix.SysctlKinfoProcSlice("kern.proc.all")
	if err != nil {
		return nil, err
	}
	procs := make([]Process, 0, len(kprocs))
	for _, kp := range kprocs {
		pid := int(kp.Proc.P_pid)
		if pid == 0 {
			continue
		}
		// P_comm is truncated, the path comes from the process arguments
		buf, err := unix.SysctlRaw("kern.procargs2", pid)
		if err != nil {
			log.WithError(err).Debugf("Skipping pid %d (%s)", pid, unix.ByteSliceToString(kp.Proc.P_comm[:]))
			continue
		}
		exe, err := parseProcArgs(buf)
		if err != nil {
			log.WithError(err).Debugf("Skipping pid %d", pid)
			continue
		}
		procs = append(procs, Process{PID: pid, Executable: exe})
	}
	return procs, nil
}

func killProcess(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}
