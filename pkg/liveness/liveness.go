package liveness

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// Check answers whether the process that owns a monitored task is still alive.
type Check interface {
	Running() bool
}

// ProcessCheck implements Check against a real pid using gopsutil.
type ProcessCheck struct {
	proc *process.Process
}

// Self returns a check bound to the current process. This is the default
// owner for bounding box watchers: the watcher belongs to the process that
// executes the node.
func Self() *ProcessCheck {
	// NewProcess only fails if the pid does not exist; our own pid does.
	p, _ := process.NewProcess(int32(os.Getpid()))
	return &ProcessCheck{proc: p}
}

// ForPID returns a check bound to an arbitrary pid.
func ForPID(pid int32) (*ProcessCheck, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("process %d: %w", pid, err)
	}
	return &ProcessCheck{proc: p}, nil
}

// Running reports whether the process is currently alive. Lookup errors are
// treated as "gone".
func (c *ProcessCheck) Running() bool {
	if c == nil || c.proc == nil {
		return false
	}
	running, err := c.proc.IsRunning()
	return err == nil && running
}
