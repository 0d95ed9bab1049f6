package daemon

import (
	"fmt"
	"os"
)

// State classifies the daemon process
type State string

// Daemon states as reported by Inspect
const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	// StateDead means a PID file exists but its process is gone
	StateDead  State = "dead"
	StateError State = "error"
)

// Status describes the daemon process as inferred from the PID file
type Status struct {
	State   State  `json:"status"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	PidFile string `json:"pid_file"`
	Message string `json:"message,omitempty"`
}

// Inspect reads the PID file and probes the process behind it. A stale
// PID file is cleaned up on the way.
func Inspect(pidFile string) Status {
	status := Status{PidFile: pidFile}

	pid, err := ReadPIDFromFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			status.State = StateStopped
			status.Message = "no PID file"
		} else {
			status.State = StateError
			status.Message = err.Error()
		}
		return status
	}
	status.PID = pid

	if !ProcessAlive(pid) {
		status.State = StateDead
		status.Message = "process not running (stale PID file)"
		if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
			status.Message = fmt.Sprintf("process not running, failed to clean stale PID file: %v", err)
		}
		return status
	}

	status.State = StateRunning
	status.Running = true
	return status
}
