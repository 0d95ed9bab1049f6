package socket

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"workerwatch/internal/watcher/types"
)

// Client talks to a daemonized watch session over its unix socket
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the given socket path
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    30 * time.Second,
	}
}

// SetTimeout sets the connection timeout for the client
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SendCommand sends one command to the daemon and returns its response
func (c *Client) SendCommand(action string, data map[string]interface{}) (*types.Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to watch socket %s: %w", c.socketPath, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	cmd := types.Command{
		Action: action,
		Data:   data,
	}
	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	var response types.Response
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &response, nil
}

// Status asks the daemon what it is watching
func (c *Client) Status() (*types.Response, error) {
	return c.SendCommand(ActionStatus, nil)
}

// Stats fetches the deploy counters
func (c *Client) Stats() (*types.Response, error) {
	return c.SendCommand(ActionStats, nil)
}

// Deploy requests a manual deploy
func (c *Client) Deploy(cause string) (*types.Response, error) {
	var data map[string]interface{}
	if cause != "" {
		data = map[string]interface{}{"cause": cause}
	}
	return c.SendCommand(ActionDeploy, data)
}

// History fetches recent deployment outcomes
func (c *Client) History(limit int) (*types.Response, error) {
	data := map[string]interface{}{
		"limit": limit,
	}
	return c.SendCommand(ActionHistory, data)
}

// Stop asks the daemon to shut down gracefully
func (c *Client) Stop() (*types.Response, error) {
	return c.SendCommand(ActionStop, nil)
}

// IsRunning reports whether a watch daemon answers on the socket
func (c *Client) IsRunning() bool {
	response, err := c.Status()
	return err == nil && response.Success
}

// WaitForReady polls until the daemon answers or maxWait elapses
func (c *Client) WaitForReady(maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		if c.IsRunning() {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return fmt.Errorf("watch daemon did not become available within %v", maxWait)
}

// WaitForExit polls until the daemon stops answering or maxWait elapses
func (c *Client) WaitForExit(maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		if !c.IsRunning() {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return fmt.Errorf("watch daemon still running after %v", maxWait)
}
