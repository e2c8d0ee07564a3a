// Package process terminates the running instances of an application
// bundle before its files are modified.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/HuuDungg/TrollFools-Framework-Selected/pkg/bundle"
	"github.com/apex/log"
)

// ErrStillRunning is returned when a process outlives the kill timeout.
var ErrStillRunning = errors.New("process still running")

// Process is a running process.
type Process struct {
	PID int
	// Executable is the absolute executable path.
	Executable string
}

// Controller kills and waits for processes.
type Controller struct {
	timeout time.Duration
	poll    time.Duration

	list func() ([]Process, error)
	kill func(pid int) error
}

// NewController returns a Controller that waits up to timeout for killed
// processes to exit.
func NewController(timeout time.Duration) *Controller {
	return &Controller{
		timeout: timeout,
		poll:    50 * time.Millisecond,
		list:    listProcesses,
		kill:    killProcess,
	}
}

// unprivate strips the /private firmlink prefix darwin reports for /var.
func unprivate(path string) string {
	if strings.HasPrefix(path, "/private/") {
		return path[len("/private"):]
	}
	return path
}

// belongsTo matches on the full executable path only; process names are
// truncated by the kernel and never identify a bundle.
func belongsTo(p Process, app *bundle.App) bool {
	if !filepath.IsAbs(p.Executable) {
		return false
	}
	exe := unprivate(filepath.Clean(p.Executable))
	return strings.HasPrefix(exe, unprivate(app.Root)+string(filepath.Separator))
}

// parseProcArgs returns the executable path from a kern.procargs2 buffer:
// a 32-bit argc followed by the NUL-terminated exec path.
func parseProcArgs(buf []byte) (string, error) {
	if len(buf) <= 4 {
		return "", fmt.Errorf("procargs too short: %d bytes", len(buf))
	}
	path := buf[4:]
	if i := bytes.IndexByte(path, 0); i >= 0 {
		path = path[:i]
	}
	if len(path) == 0 || path[0] != '/' {
		return "", fmt.Errorf("procargs holds no executable path")
	}
	return string(path), nil
}

func (c *Controller) running(app *bundle.App) ([]Process, error) {
	procs, err := c.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	var found []Process
	for _, p := range procs {
		if belongsTo(p, app) {
			found = append(found, p)
		}
	}
	return found, nil
}

// Terminate kills every process running from app's bundle and returns once
// all of them have exited.
func (c *Controller) Terminate(ctx context.Context, app *bundle.App) error {
	procs, err := c.running(app)
	if err != nil {
		return err
	}
	if len(procs) == 0 {
		log.WithField("app", app.ID).Debug("No running process")
		return nil
	}
	for _, p := range procs {
		log.WithFields(log.Fields{"pid": p.PID, "executable": p.Executable}).Info("Killing process")
		if err := c.kill(p.PID); err != nil && !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("failed to kill process %d: %w", p.PID, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		left, err := c.running(app)
		if err != nil {
			return err
		}
		if len(left) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: pid %d of %s: %w", ErrStillRunning, left[0].PID, app.ID, ctx.Err())
		case <-ticker.C:
		}
	}
}
