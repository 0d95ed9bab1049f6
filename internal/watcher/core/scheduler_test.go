package core

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"workerwatch/internal/deploy"
	"workerwatch/internal/notify"
	"workerwatch/internal/store"
	"workerwatch/internal/watcher/reporter"
)

// fakeDeployer scripts per-call outcomes and tracks overlap so tests can
// assert the one-in-flight rule.
type fakeDeployer struct {
	mu            sync.Mutex
	calls         int
	concurrent    int
	maxConcurrent int
	latency       time.Duration
	// results[i] is the error for call i+1; calls past the end succeed
	results []error
	// block, when non-nil, holds calls until released or canceled
	block chan struct{}
	// blockFrom limits blocking to call numbers >= blockFrom; 0 blocks all
	blockFrom int
	// started receives the call number as each attempt begins
	started chan int
}

func (f *fakeDeployer) Deploy(ctx context.Context, _ *deploy.Request) (*deploy.Result, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.concurrent++
	if f.concurrent > f.maxConcurrent {
		f.maxConcurrent = f.concurrent
	}
	var scripted error
	if n-1 < len(f.results) {
		scripted = f.results[n-1]
	}
	block := f.block
	blockFrom := f.blockFrom
	latency := f.latency
	f.mu.Unlock()

	if f.started != nil {
		f.started <- n
	}
	if block != nil && n >= blockFrom {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}
	if latency > 0 {
		time.Sleep(latency)
	}

	f.mu.Lock()
	f.concurrent--
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scripted != nil {
		return nil, scripted
	}
	return &deploy.Result{
		VersionID: "982b47f4-5d2d-471b-a084-508acc7a2bc4",
		URLs:      []string{"https://my-worker.acct.workers.dev"},
	}, nil
}

func (f *fakeDeployer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeDeployer) maxOverlap() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxConcurrent
}

func newTestScheduler(t *testing.T, d *fakeDeployer) (*Scheduler, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	s := NewScheduler(SchedulerOptions{
		Deployer: d,
		Request:  &deploy.Request{Name: "my-worker"},
		Reporter: reporter.New(&buf, "", false),
	})
	return s, &buf
}

func TestTriggerCoalescesDuringInFlight(t *testing.T) {
	d := &fakeDeployer{
		block:   make(chan struct{}),
		started: make(chan int, 10),
	}
	s, _ := newTestScheduler(t, d)

	s.Trigger("first")
	<-d.started

	// Five triggers land while the attempt is in flight
	for i := 0; i < 5; i++ {
		s.Trigger("burst")
	}

	close(d.block)
	if !s.Wait(5 * time.Second) {
		t.Fatal("scheduler did not settle")
	}

	if got := d.callCount(); got != 2 {
		t.Errorf("attempts = %d, want 2 (one in flight + one coalesced follow-up)", got)
	}
	if overlap := d.maxOverlap(); overlap != 1 {
		t.Errorf("max concurrent attempts = %d, want 1", overlap)
	}

	stats := s.Stats()
	if stats.Attempts != 2 || stats.Successful != 2 {
		t.Errorf("stats = %+v, want 2 attempts, 2 successful", stats)
	}
}

func TestNoConcurrentAttemptsUnderLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}

	d := &fakeDeployer{latency: 5 * time.Millisecond}
	s, _ := newTestScheduler(t, d)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				s.Trigger("load")
				time.Sleep(2 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if !s.Wait(5 * time.Second) {
		t.Fatal("scheduler did not settle")
	}
	if overlap := d.maxOverlap(); overlap != 1 {
		t.Errorf("max concurrent attempts = %d, want 1", overlap)
	}
}

func TestCounterIncrementsPerAttemptInOrder(t *testing.T) {
	d := &fakeDeployer{results: []error{nil, errors.New("boom"), nil}}
	s, buf := newTestScheduler(t, d)

	for i := 0; i < 3; i++ {
		s.Trigger("seq")
		if !s.Wait(5 * time.Second) {
			t.Fatal("scheduler did not settle")
		}
	}

	out := buf.String()
	for _, want := range []string{"deploy #1 started", "deploy #2 started", "deploy #3 started"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if idx1, idx2 := strings.Index(out, "deploy #1"), strings.Index(out, "deploy #2"); idx1 > idx2 {
		t.Error("attempt numbering out of execution order")
	}

	stats := s.Stats()
	if stats.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", stats.Attempts)
	}
	if stats.Failed != 1 {
		t.Errorf("failed attempts share the numbering: failed = %d, want 1", stats.Failed)
	}
}

func TestFailureDoesNotStopLoop(t *testing.T) {
	d := &fakeDeployer{results: []error{errors.New("build error")}}
	s, buf := newTestScheduler(t, d)

	outcome := s.InitialDeploy("startup")
	if outcome == nil || outcome.OK() {
		t.Fatalf("initial outcome = %+v, want failure", outcome)
	}

	stats := s.Stats()
	if stats.Failed != 1 || stats.Successful != 0 {
		t.Fatalf("stats after failure = %+v", stats)
	}

	// The next trigger still deploys
	s.Trigger("retry")
	if !s.Wait(5 * time.Second) {
		t.Fatal("scheduler did not settle")
	}

	stats = s.Stats()
	if stats.Successful != 1 || stats.Failed != 1 {
		t.Errorf("stats after recovery = %+v", stats)
	}
	if !strings.Contains(buf.String(), "deploy #1 failed") {
		t.Errorf("failure not reported:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "deploy #2 done") {
		t.Errorf("recovery not reported:\n%s", buf.String())
	}
}

func TestStatsArithmetic(t *testing.T) {
	d := &fakeDeployer{
		latency: 20 * time.Millisecond,
		results: []error{nil, errors.New("boom")},
	}
	s, _ := newTestScheduler(t, d)

	s.InitialDeploy("startup")
	s.Trigger("again")
	if !s.Wait(5 * time.Second) {
		t.Fatal("scheduler did not settle")
	}

	stats := s.Stats()
	if stats.Successful != 1 || stats.Failed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.TotalTime < 40*time.Millisecond {
		t.Errorf("total time %v below the two 20ms attempts", stats.TotalTime)
	}
	if avg := stats.AverageDuration(); avg < 20*time.Millisecond || avg > time.Second {
		t.Errorf("average duration %v out of range", avg)
	}
	if stats.LastDeploy.IsZero() {
		t.Error("last deploy time not recorded")
	}
}

func TestPendingCauseIsLatest(t *testing.T) {
	d := &fakeDeployer{
		block:   make(chan struct{}),
		started: make(chan int, 10),
	}
	s, buf := newTestScheduler(t, d)

	s.Trigger("original")
	<-d.started
	s.Trigger("stale")
	s.Trigger("latest change")

	close(d.block)
	if !s.Wait(5 * time.Second) {
		t.Fatal("scheduler did not settle")
	}

	out := buf.String()
	if !strings.Contains(out, "deploy #2 started (latest change)") {
		t.Errorf("follow-up should carry the latest cause:\n%s", out)
	}
	if strings.Contains(out, "(stale)") {
		t.Errorf("stale cause leaked into the follow-up:\n%s", out)
	}
}

func TestCloseDiscardsPending(t *testing.T) {
	d := &fakeDeployer{
		block:   make(chan struct{}),
		started: make(chan int, 10),
	}
	s, _ := newTestScheduler(t, d)

	s.Trigger("first")
	<-d.started
	s.Trigger("pending")
	s.Close()

	close(d.block)
	if !s.Wait(5 * time.Second) {
		t.Fatal("scheduler did not settle")
	}

	if got := d.callCount(); got != 1 {
		t.Errorf("attempts = %d; pending follow-up should be discarded at close", got)
	}

	s.Trigger("after close")
	time.Sleep(50 * time.Millisecond)
	if got := d.callCount(); got != 1 {
		t.Errorf("trigger after Close started an attempt")
	}
}

func TestInitialDeploySynchronous(t *testing.T) {
	d := &fakeDeployer{latency: 10 * time.Millisecond}
	s, _ := newTestScheduler(t, d)

	outcome := s.InitialDeploy("startup")
	if outcome == nil || !outcome.OK() {
		t.Fatalf("outcome = %+v", outcome)
	}

	// Settled before any Wait: the call itself was synchronous
	stats := s.Stats()
	if stats.Successful != 1 || stats.InFlight {
		t.Errorf("stats after synchronous initial deploy = %+v", stats)
	}
}

func TestSchedulerRecordsHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	st := store.New(filepath.Join(t.TempDir(), "state.db"))
	if err := st.Init(); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	defer st.Close()

	d := &fakeDeployer{results: []error{nil, errors.New("boom")}}
	var buf bytes.Buffer
	s := NewScheduler(SchedulerOptions{
		Deployer: d,
		Request:  &deploy.Request{Name: "my-worker"},
		Reporter: reporter.New(&buf, "", false),
		Store:    st,
	})

	s.InitialDeploy("startup")
	s.Trigger("change")
	if !s.Wait(5 * time.Second) {
		t.Fatal("scheduler did not settle")
	}

	rows, err := st.RecentDeployments(10)
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("history rows = %d, want 2", len(rows))
	}
	// Most recent first
	if rows[0].OK || !rows[1].OK {
		t.Errorf("history outcomes wrong: %+v", rows)
	}
}

// signalingNotifier reports each delivery on a channel
type signalingNotifier struct {
	delivered chan notify.Event
}

func (n *signalingNotifier) Notify(_ context.Context, ev notify.Event) error {
	n.delivered <- ev
	return nil
}

func TestNotificationPolicyFailuresAndRecovery(t *testing.T) {
	d := &fakeDeployer{results: []error{errors.New("boom"), nil, nil}}
	fn := &signalingNotifier{delivered: make(chan notify.Event, 10)}

	var buf bytes.Buffer
	s := NewScheduler(SchedulerOptions{
		Deployer: d,
		Request:  &deploy.Request{Name: "my-worker"},
		Reporter: reporter.New(&buf, "", false),
		Notifier: fn,
		Policy:   notify.Policy{},
	})

	// Attempt 1 fails: notified
	s.InitialDeploy("startup")
	select {
	case ev := <-fn.delivered:
		if ev.Outcome.OK() {
			t.Error("first notification should be the failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("failure was not notified")
	}

	// Attempt 2 recovers: notified
	s.Trigger("fix")
	if !s.Wait(5 * time.Second) {
		t.Fatal("scheduler did not settle")
	}
	select {
	case ev := <-fn.delivered:
		if !ev.Recovered {
			t.Error("second notification should be marked as recovery")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recovery was not notified")
	}

	// Attempt 3 is a plain success: silent
	s.Trigger("routine")
	if !s.Wait(5 * time.Second) {
		t.Fatal("scheduler did not settle")
	}
	select {
	case <-fn.delivered:
		t.Error("plain success notified under failures-only policy")
	case <-time.After(200 * time.Millisecond):
	}
}
