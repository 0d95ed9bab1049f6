// Package socket exposes a running watch session over a unix socket so
// the CLI can query and control a daemonized watcher. The protocol is
// one JSON command per connection answered by one JSON response.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"workerwatch/internal/log"
	"workerwatch/internal/watcher/types"
)

// connTimeout bounds how long a connection may sit idle before the
// server gives up on reading its command
const connTimeout = 30 * time.Second

// CommandHandler processes decoded socket commands
type CommandHandler interface {
	HandleCommand(cmd types.Command) types.Response
}

// Server accepts control connections on a unix socket
type Server struct {
	socketPath string
	handler    CommandHandler

	mu       sync.RWMutex
	listener net.Listener
}

// NewServer creates a socket server. Init must be called before Run.
func NewServer(socketPath string, handler CommandHandler) *Server {
	return &Server{
		socketPath: socketPath,
		handler:    handler,
	}
}

// Init binds the unix socket, replacing a stale socket file left behind
// by a previous run
func (s *Server) Init() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		log.Error("failed to remove stale socket file: %v", err)
	}

	socketDir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(socketDir, 0o750); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create unix socket: %w", err)
	}

	// The CLI may run as a different user than the daemon
	//nolint:gosec // G302: control socket needs 0666 for multi-user access
	if err := os.Chmod(s.socketPath, 0o666); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	log.Debug("socket server listening: %s", s.socketPath)
	return nil
}

// Close stops accepting connections and removes the socket file
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil

	if removeErr := os.Remove(s.socketPath); removeErr != nil && !os.IsNotExist(removeErr) {
		log.Error("failed to remove socket file: %v", removeErr)
	}
	return err
}

// Run accepts connections until ctx is canceled or the server is closed.
// Each connection is served on its own goroutine.
func (s *Server) Run(ctx context.Context) {
	s.mu.RLock()
	listener := s.listener
	s.mu.RUnlock()

	if listener == nil {
		return
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			// Accept fails permanently once the listener is closed
			if !errors.Is(err, net.ErrClosed) {
				log.Error("socket accept failed: %v", err)
			}
			return
		}
		go s.handleConnection(conn)
	}
}

// handleConnection reads one command, runs it through the handler and
// writes the response
func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(connTimeout))

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var cmd types.Command
	if err := decoder.Decode(&cmd); err != nil {
		_ = encoder.Encode(types.Response{
			Success: false,
			Error:   fmt.Sprintf("failed to decode command: %v", err),
		})
		return
	}

	response := s.handler.HandleCommand(cmd)
	if err := encoder.Encode(response); err != nil {
		log.Error("failed to send socket response: %v", err)
	}
}
