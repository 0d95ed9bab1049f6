// Package tail streams live execution logs from a deployed worker over
// the platform's tail WebSocket.
package tail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"workerwatch/internal/log"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Tail events can carry request bodies and stack traces
	maxMessageSize = 1 << 20
)

// Format selects how tail events are rendered
type Format string

// Supported --format values
const (
	FormatPretty Format = "pretty"
	FormatJSON   Format = "json"
)

// ParseFormat validates a format flag value
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatPretty, FormatJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown tail format %q (want pretty or json)", s)
	}
}

// Options configures a tail stream
type Options struct {
	// URL is the WebSocket endpoint returned when the tail was created
	URL    string
	Format Format
	// Out defaults to stdout
	Out io.Writer
}

// Stream connects to the tail socket and renders messages until ctx is
// canceled or the server closes the session. Cancellation is reported
// as a clean exit.
func Stream(ctx context.Context, opts Options) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = FormatPretty
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
		Subprotocols:     []string{"trace-v1"},
	}
	conn, resp, err := dialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to tail (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to tail: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Keepalive pings plus the close handshake on cancellation. stopPing
	// ends the goroutine promptly once the read loop returns.
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ctx.Done():
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = conn.Close()
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	log.Debug("tail connected: %s", opts.URL)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("tail connection lost: %w", err)
		}
		printMessage(out, format, raw)
	}
}

func printMessage(out io.Writer, format Format, raw []byte) {
	if format == FormatJSON {
		fmt.Fprintln(out, string(bytes.TrimSpace(raw)))
		return
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug("unparseable tail message: %v", err)
		fmt.Fprintln(out, string(raw))
		return
	}
	fmt.Fprint(out, renderPretty(&msg))
}
