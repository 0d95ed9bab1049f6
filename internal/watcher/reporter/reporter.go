// Package reporter renders scheduler events as human-readable status
// lines. It holds no scheduling authority: every method is fire-and-forget
// presentation that never returns an error.
package reporter

import (
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"workerwatch/internal/watcher/types"
)

// Reporter writes condensed or verbose status output for one watch
// session. Safe for concurrent use; the attempt goroutine and the session
// loop both call into it.
type Reporter struct {
	// Verbose switches from one-line summaries to full deploy output
	// pass-through with thin start/settle markers.
	Verbose bool

	mu        sync.Mutex
	out       io.Writer
	root      string
	started   time.Time
	deploying bool
}

// New creates a reporter writing to out. Change paths are shown relative
// to root when possible.
func New(out io.Writer, root string, verbose bool) *Reporter {
	return &Reporter{
		Verbose: verbose,
		out:     out,
		root:    root,
		started: time.Now(),
	}
}

func stamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration renders sub-minute durations with one decimal and longer
// ones in Go's coarse form.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

func (r *Reporter) relPath(path string) string {
	if r.root == "" {
		return path
	}
	rel, err := filepath.Rel(r.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// Banner prints the watch-session header with the armed targets.
func (r *Reporter) Banner(name string, targets []string, debounce time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "%s watching %s for changes (debounce %s)\n",
		color.BlueString("[+]"), color.CyanString(name), debounce)
	for _, target := range targets {
		fmt.Fprintf(r.out, "    %s\n", r.relPath(target))
	}
	fmt.Fprintf(r.out, "    press 'h' for keys\n")
}

// FileChanged reports one accepted watch event. In condensed mode changes
// arriving while a deploy is in flight are suppressed; the pending
// follow-up deploy already covers them.
func (r *Reporter) FileChanged(path, op string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deploying && !r.Verbose {
		return
	}
	fmt.Fprintf(r.out, "[%s] %s %s (%s)\n",
		stamp(), color.YellowString("changed:"), r.relPath(path), op)
}

// DeployStarted marks the beginning of attempt n.
func (r *Reporter) DeployStarted(n int, cause string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deploying = true
	line := fmt.Sprintf("[%s] %s started", stamp(), color.CyanString("deploy #%d", n))
	if cause != "" {
		line += fmt.Sprintf(" (%s)", cause)
	}
	fmt.Fprintln(r.out, line)
}

// DeploySucceeded marks attempt n as settled successfully, printing the
// deployed URLs and a derived preview URL when one can be constructed.
func (r *Reporter) DeploySucceeded(n int, dur time.Duration, versionID string, urls []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deploying = false
	line := fmt.Sprintf("[%s] %s done in %s", stamp(), color.GreenString("deploy #%d", n), formatDuration(dur))
	if len(urls) > 0 {
		line += " -> " + urls[0]
		if preview := PreviewURL(urls[0], versionID); preview != "" {
			line += fmt.Sprintf(" (preview: %s)", preview)
		}
	}
	fmt.Fprintln(r.out, line)
	if len(urls) > 1 {
		for _, extra := range urls[1:] {
			fmt.Fprintf(r.out, "    -> %s\n", extra)
		}
	}
}

// DeployFailed marks attempt n as settled with an error. The loop keeps
// running; this is reporting, not control flow.
func (r *Reporter) DeployFailed(n int, dur time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deploying = false
	msg := ""
	if err != nil {
		msg = strings.SplitN(err.Error(), "\n", 2)[0]
	}
	fmt.Fprintf(r.out, "[%s] %s failed in %s: %s\n",
		stamp(), color.RedString("deploy #%d", n), formatDuration(dur), msg)
}

// ShowStats prints the cumulative session statistics block.
func (r *Reporter) ShowStats(s types.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statsBlock(s)
}

func (r *Reporter) statsBlock(s types.Stats) {
	fmt.Fprintf(r.out, "%s deployment stats\n", color.BlueString("[+]"))
	fmt.Fprintf(r.out, "    attempts:     %d (%d ok, %d failed)\n", s.Settled(), s.Successful, s.Failed)
	if s.Settled() > 0 {
		fmt.Fprintf(r.out, "    success rate: %.1f%%\n", s.SuccessRate())
		fmt.Fprintf(r.out, "    average time: %s\n", formatDuration(s.AverageDuration()))
	}
	if !s.LastDeploy.IsZero() {
		fmt.Fprintf(r.out, "    last deploy:  %s ago\n", formatDuration(time.Since(s.LastDeploy)))
	}
	if s.InFlight {
		fmt.Fprintf(r.out, "    in flight:    yes\n")
	}
}

// ShowHelp prints the interactive key bindings.
func (r *Reporter) ShowHelp() {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "%s keys\n", color.BlueString("[+]"))
	fmt.Fprintf(r.out, "    r  redeploy now\n")
	fmt.Fprintf(r.out, "    c  clear screen\n")
	fmt.Fprintf(r.out, "    s  show stats\n")
	fmt.Fprintf(r.out, "    h  show this help\n")
	fmt.Fprintf(r.out, "    q  quit\n")
}

// ClearScreen wipes the terminal.
func (r *Reporter) ClearScreen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, "\033[2J\033[H")
}

// FinalSummary prints the shutdown report with the total session length.
func (r *Reporter) FinalSummary(s types.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "%s watch session ended after %s\n",
		color.BlueString("[+]"), formatDuration(time.Since(r.started)))
	r.statsBlock(s)
}

// PreviewURL derives the versioned preview URL the platform serves for a
// deployment: the first hyphen-separated segment of the version ID joined
// onto the first hostname label. Hostnames with fewer than three labels
// have no preview scheme; the result is then empty, never an error. Any
// port is dropped.
func PreviewURL(mainURL, versionID string) string {
	if mainURL == "" || versionID == "" {
		return ""
	}
	u, err := url.Parse(mainURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	labels := strings.Split(u.Hostname(), ".")
	if len(labels) < 3 {
		return ""
	}
	segment := strings.SplitN(versionID, "-", 2)[0]
	if segment == "" {
		return ""
	}
	labels[0] = segment + "-" + labels[0]
	u.Host = strings.Join(labels, ".")
	return u.String()
}
