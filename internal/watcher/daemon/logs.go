package daemon

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tail "github.com/hpcloud/tail"

	"workerwatch/internal/log"
)

// recentWindow bounds how much of the log file RecentLogLines reads
const recentWindow = 16 * 1024

// RecentLogLines returns the last n non-empty lines of logFile, reading
// only the file's tail. Missing or unreadable files yield nil.
func RecentLogLines(logFile string, n int) []string {
	//nolint:gosec // G304: log file path is constructed by application
	f, err := os.Open(logFile)
	if err != nil {
		return nil
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return nil
	}
	offset := info.Size() - recentWindow
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil
	}

	lines := strings.Split(string(data), "\n")
	// The first line may be cut by the seek
	if offset > 0 && len(lines) > 0 {
		lines = lines[1:]
	}

	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// ShowRecentLogs prints the last few log lines for context
func ShowRecentLogs(logFile string) {
	lines := RecentLogLines(logFile, 5)
	if len(lines) == 0 {
		return
	}
	log.Info("recent activity:")
	for _, line := range lines {
		log.InfoH2("%s", line)
	}
}

// FollowLogs streams new log lines to stdout until interrupted. ReOpen
// and Poll keep the tail attached across log rotation.
func FollowLogs(logFile string) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	t, err := tail.TailFile(logFile, tail.Config{
		ReOpen:    true,
		Follow:    true,
		MustExist: false,
		Poll:      true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
	})
	if err != nil {
		return fmt.Errorf("failed to tail log file: %w", err)
	}
	defer t.Cleanup()

	ShowRecentLogs(logFile)

	for {
		select {
		case <-sigChan:
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return fmt.Errorf("log tail channel closed")
			}
			if line == nil {
				continue
			}
			text := strings.TrimRight(line.Text, "\r\n")
			if strings.TrimSpace(text) == "" {
				continue
			}
			// Daemon log lines already carry a [+] / [x] / [15:04:05] prefix
			if strings.HasPrefix(text, "[") {
				fmt.Println(text)
			} else {
				fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05"), text)
			}
		}
	}
}
