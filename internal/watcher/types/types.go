//nolint:revive // Package types provides type definitions for the watcher
package types

import (
	"path/filepath"
	"time"

	"workerwatch/internal/config"
)

// Config holds configuration for a watch session
type Config struct {
	Debounce       time.Duration
	IgnorePatterns []string
	Verbose        bool
	// ShutdownGrace bounds how long shutdown waits for an in-flight
	// deploy to settle before killing it
	ShutdownGrace time.Duration
	// Daemon mode settings
	DaemonMode bool
	PidFile    string
	LogFile    string
	// Socket configuration
	SocketEnabled bool
	SocketPath    string
	// State database
	DatabasePath string
}

// DefaultConfig provides default values rooted at the project directory
func DefaultConfig(root string) Config {
	stateDir := filepath.Join(root, config.StateDir)
	return Config{
		Debounce:      config.DefaultDebounce,
		ShutdownGrace: 30 * time.Second,
		DaemonMode:    false,
		PidFile:       filepath.Join(stateDir, "watcher.pid"),
		LogFile:       filepath.Join(stateDir, "watcher.log"),
		SocketEnabled: true,
		SocketPath:    filepath.Join(stateDir, "watcher.sock"),
		DatabasePath:  filepath.Join(stateDir, "state.db"),
	}
}

// EventKind discriminates messages on the session's event channel
type EventKind int

// Event kinds
const (
	// EventFileChanged is a filtered filesystem change
	EventFileChanged EventKind = iota
	// EventDeployTrigger asks the scheduler for a deploy
	EventDeployTrigger
	// EventKey is one byte read from the interactive terminal
	EventKey
)

// Event is one message on the session's unified channel. File events,
// debounce fires and keypresses all flow through the same channel so one
// consumer loop serializes them.
type Event struct {
	Kind  EventKind
	Path  string // EventFileChanged
	Op    string // EventFileChanged: create, write, remove, rename, chmod
	Cause string // EventDeployTrigger
	Key   byte   // EventKey
}

// Command is a control request sent to the watch daemon via socket
type Command struct {
	Action string                 `json:"action"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// Response is the daemon's reply to a socket command
type Response struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Stats is a snapshot of the deploy counters
type Stats struct {
	Attempts   int           `json:"attempts"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	TotalTime  time.Duration `json:"total_time"`
	LastDeploy time.Time     `json:"last_deploy"`
	InFlight   bool          `json:"in_flight"`
	Pending    bool          `json:"pending"`
}

// Settled returns how many attempts have finished
func (s *Stats) Settled() int {
	return s.Successful + s.Failed
}

// SuccessRate returns the percentage of settled attempts that succeeded
func (s *Stats) SuccessRate() float64 {
	settled := s.Settled()
	if settled == 0 {
		return 0
	}
	return float64(s.Successful) / float64(settled) * 100
}

// AverageDuration returns the mean attempt duration over settled attempts
func (s *Stats) AverageDuration() time.Duration {
	settled := s.Settled()
	if settled == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(settled)
}
