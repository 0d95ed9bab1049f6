// Package daemon manages the background watch process: forking it into
// the background, tracking it through a PID file and following its log.
package daemon

import (
	"fmt"
	"os"
	"syscall"
	"time"

	godaemon "github.com/sevlyar/go-daemon"

	"workerwatch/internal/errors"
	"workerwatch/internal/log"
)

// Daemonize forks the current process into a background daemon with
// stdout and stderr pointed at logFile. The parent receives the child
// process handle and should exit after reporting; the child receives
// isChild=true and owns the PID file until it exits.
func Daemonize(pidFile, logFile string) (child *os.Process, isChild bool, err error) {
	if err := EnsureDirectoriesExist(pidFile, logFile); err != nil {
		return nil, false, err
	}

	daemonCtx := &godaemon.Context{
		PidFileName: pidFile,
		PidFilePerm: 0o644,
		LogFileName: logFile,
		LogFilePerm: 0o640,
		WorkDir:     "./",
		Umask:       0o27,
	}

	if godaemon.WasReborn() {
		if err := WritePIDFile(pidFile, os.Getpid()); err != nil {
			return nil, true, fmt.Errorf("failed to write PID file: %w", err)
		}
		return nil, true, nil
	}

	child, err = daemonCtx.Reborn()
	if err != nil {
		return nil, false, fmt.Errorf("failed to fork watch daemon: %w", err)
	}
	if child == nil {
		return nil, false, fmt.Errorf("unexpected daemon state")
	}
	return child, false, nil
}

// Stop terminates the daemon behind pidFile: SIGTERM first, SIGKILL if
// it has not exited within wait. The PID file is removed either way.
// Graceful shutdown can take a while when a deploy is in flight, so
// callers should pass a wait longer than the session's shutdown grace.
func Stop(pidFile string, wait time.Duration) error {
	pid, err := ReadPIDFromFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(errors.ErrWatcherNotRunning, "no PID file at %s", pidFile)
		}
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return removePIDFile(pidFile)
		}
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if !ProcessAlive(pid) {
			return removePIDFile(pidFile)
		}
		time.Sleep(200 * time.Millisecond)
	}

	log.Warn("daemon still running after %s, sending SIGKILL", wait)
	if err := process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	return removePIDFile(pidFile)
}

func removePIDFile(pidFile string) error {
	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}
