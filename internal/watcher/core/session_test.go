package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"workerwatch/internal/config"
	"workerwatch/internal/deploy"
	"workerwatch/internal/watcher/reporter"
	"workerwatch/internal/watcher/types"
)

// syncBuffer lets the test poll output while the reporter writes
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForOutput(t *testing.T, buf *syncBuffer, want string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output never contained %q:\n%s", want, buf.String())
}

// newTestProject lays out a minimal worker project on disk
func newTestProject(t *testing.T) *config.File {
	t.Helper()

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	entry := filepath.Join(src, "index.ts")
	if err := os.WriteFile(entry, []byte("export default {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "workerwatch.yaml")
	if err := os.WriteFile(cfgPath, []byte("name: my-worker\nmain: src/index.ts\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	return &config.File{
		Name:          "my-worker",
		Main:          entry,
		Path:          cfgPath,
		DeployCommand: "wrangler",
	}
}

func newTestSession(t *testing.T, cfg *config.File, d *fakeDeployer, wcfg types.Config) (*Session, *syncBuffer) {
	t.Helper()

	buf := &syncBuffer{}
	sess, err := NewSession(SessionOptions{
		Config:   cfg,
		Watch:    wcfg,
		Request:  &deploy.Request{Name: cfg.Name},
		Deployer: d,
		Reporter: reporter.New(buf, cfg.Root(), wcfg.Verbose),
	})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return sess, buf
}

// watchSessionConfig keeps tests off the real terminal and shortens the
// debounce so change-to-deploy latency stays testable.
func watchSessionConfig() types.Config {
	return types.Config{
		Debounce:      30 * time.Millisecond,
		ShutdownGrace: 3 * time.Second,
		DaemonMode:    true,
	}
}

func waitForWatches(t *testing.T, sess *Session) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sess.watcher.WatchCount() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("watcher never armed")
}

func TestSessionEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}

	cfg := newTestProject(t)
	d := &fakeDeployer{results: []error{nil, errors.New("build failed"), nil}}
	sess, buf := newTestSession(t, cfg, d, watchSessionConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	// Initial deploy settles before the watcher arms
	waitForOutput(t, buf, "deploy #1 done", 5*time.Second)
	waitForWatches(t, sess)

	// A change triggers attempt 2, which fails; the loop keeps going
	if err := os.WriteFile(cfg.Main, []byte("export default { fetch }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForOutput(t, buf, "deploy #2 failed", 5*time.Second)

	// The next change still deploys
	if err := os.WriteFile(cfg.Main, []byte("export default { fetch, queue }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitForOutput(t, buf, "deploy #3 done", 5*time.Second)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not shut down")
	}

	out := buf.String()
	if !strings.Contains(out, "watch session ended") {
		t.Errorf("final summary missing:\n%s", out)
	}
	if got := d.callCount(); got < 3 {
		t.Errorf("deploy attempts = %d, want at least 3", got)
	}
	if overlap := d.maxOverlap(); overlap != 1 {
		t.Errorf("max concurrent attempts = %d, want 1", overlap)
	}
}

func TestSessionShutdownWaitsForInFlight(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}

	cfg := newTestProject(t)
	d := &fakeDeployer{
		block:     make(chan struct{}),
		blockFrom: 2,
		started:   make(chan int, 5),
	}
	sess, buf := newTestSession(t, cfg, d, watchSessionConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	waitForOutput(t, buf, "deploy #1 done", 5*time.Second)
	waitForWatches(t, sess)

	if err := os.WriteFile(cfg.Main, []byte("export default { fetch }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	<-d.started // attempt 1 already consumed its slot; this is attempt 2
	<-d.started

	cancel()
	select {
	case <-done:
		t.Fatal("session exited while a deploy was in flight")
	case <-time.After(200 * time.Millisecond):
	}

	var released time.Time
	go func() {
		time.Sleep(100 * time.Millisecond)
		released = time.Now()
		close(d.block)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
		if released.IsZero() {
			t.Error("session returned before the in-flight deploy settled")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session never finished draining")
	}

	out := buf.String()
	if !strings.Contains(out, "deploy #2 done") {
		t.Errorf("in-flight attempt did not settle before the summary:\n%s", out)
	}
	if !strings.Contains(out, "(2 ok, 0 failed)") {
		t.Errorf("final summary missing the drained attempt:\n%s", out)
	}
}

func TestSessionShutdownKillsAfterGrace(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}

	cfg := newTestProject(t)
	d := &fakeDeployer{
		block:     make(chan struct{}), // never released; only ctx frees it
		blockFrom: 2,
		started:   make(chan int, 5),
	}
	wcfg := watchSessionConfig()
	wcfg.ShutdownGrace = 100 * time.Millisecond
	sess, buf := newTestSession(t, cfg, d, wcfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	waitForOutput(t, buf, "deploy #1 done", 5*time.Second)
	waitForWatches(t, sess)

	if err := os.WriteFile(cfg.Main, []byte("export default { fetch }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	<-d.started
	<-d.started

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session hung instead of killing the stuck deploy")
	}

	out := buf.String()
	if !strings.Contains(out, "1 failed") {
		t.Errorf("killed attempt should settle as a failure:\n%s", out)
	}
}

func TestSessionRequestStop(t *testing.T) {
	cfg := newTestProject(t)
	d := &fakeDeployer{}
	sess, buf := newTestSession(t, cfg, d, watchSessionConfig())

	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background()) }()

	waitForOutput(t, buf, "deploy #1 done", 5*time.Second)
	sess.RequestStop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RequestStop did not end the session")
	}
}

func TestSessionKeyHandling(t *testing.T) {
	cfg := newTestProject(t)
	d := &fakeDeployer{}
	sess, buf := newTestSession(t, cfg, d, watchSessionConfig())

	if quit := sess.handleKey(KeyRedeploy); quit {
		t.Error("redeploy key should not quit")
	}
	if !sess.sched.Wait(5 * time.Second) {
		t.Fatal("manual deploy did not settle")
	}
	if d.callCount() != 1 {
		t.Errorf("manual trigger attempts = %d, want 1", d.callCount())
	}
	if !strings.Contains(buf.String(), "(manual)") {
		t.Errorf("manual cause missing:\n%s", buf.String())
	}

	sess.handleKey(KeyStats)
	if !strings.Contains(buf.String(), "attempts:") {
		t.Errorf("stats key printed nothing:\n%s", buf.String())
	}

	sess.handleKey(KeyHelp)
	if !strings.Contains(buf.String(), "redeploy now") {
		t.Errorf("help key printed nothing:\n%s", buf.String())
	}

	sess.handleKey(KeyClear)
	if !strings.Contains(buf.String(), "watching my-worker") {
		t.Errorf("clear should reprint the banner:\n%s", buf.String())
	}

	for _, key := range []byte{KeyQuit, KeyCtrlC} {
		if quit := sess.handleKey(key); !quit {
			t.Errorf("key %q should quit", key)
		}
	}
	if quit := sess.handleKey('x'); quit {
		t.Error("unknown key should be ignored")
	}
}

func TestSessionChangeEventFlow(t *testing.T) {
	cfg := newTestProject(t)
	d := &fakeDeployer{}
	sess, buf := newTestSession(t, cfg, d, watchSessionConfig())

	sess.handleEvent(types.Event{Kind: types.EventFileChanged, Path: cfg.Main, Op: "write"})
	if !strings.Contains(buf.String(), "changed: src/index.ts (write)") {
		t.Errorf("change line missing:\n%s", buf.String())
	}

	// The debounce fire resolves its cause from the last change
	sess.handleEvent(types.Event{Kind: types.EventDeployTrigger})
	if !sess.sched.Wait(5 * time.Second) {
		t.Fatal("deploy did not settle")
	}
	if !strings.Contains(buf.String(), "deploy #1 started (src/index.ts changed)") {
		t.Errorf("cause not derived from last change:\n%s", buf.String())
	}
}

func TestWatchTargets(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.File
		want []string
	}{
		{
			name: "full set",
			cfg: config.File{
				Path:   "workerwatch.yaml",
				Main:   "src/index.ts",
				Assets: "public",
				Site:   "static",
			},
			want: []string{"workerwatch.yaml", "src/index.ts", "src", "public", "static"},
		},
		{
			name: "minimal",
			cfg:  config.File{Main: "index.ts"},
			want: []string{"index.ts", "."},
		},
		{
			name: "no duplicate directories",
			cfg:  config.File{Main: "src/index.ts", Assets: "src"},
			want: []string{"src/index.ts", "src"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WatchTargets(&tt.cfg)
			if len(got) != len(tt.want) {
				t.Fatalf("targets = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("targets[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
