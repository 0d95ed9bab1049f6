package core

import (
	"context"
	"sync"
	"time"

	"workerwatch/internal/deploy"
	"workerwatch/internal/log"
	"workerwatch/internal/notify"
	"workerwatch/internal/store"
	"workerwatch/internal/watcher/reporter"
	"workerwatch/internal/watcher/types"
)

// Scheduler owns the deploy serialization policy: at most one attempt in
// flight, and any number of triggers arriving during an attempt collapse
// into exactly one follow-up that starts as soon as the attempt settles.
// A failed attempt is recorded and reported; it never stops the loop.
type Scheduler struct {
	deployer deploy.Deployer
	request  *deploy.Request
	reporter *reporter.Reporter
	store    *store.Store
	notifier notify.Notifier
	policy   notify.Policy

	// deployCtx bounds attempt subprocesses; the session cancels it when
	// the shutdown grace period expires.
	deployCtx context.Context

	mu         sync.Mutex
	deploying  bool
	pending    bool
	cause      string
	count      int
	stats      types.Stats
	lastFailed bool
	closed     bool

	wg sync.WaitGroup
}

// SchedulerOptions wires a scheduler's collaborators
type SchedulerOptions struct {
	Deployer deploy.Deployer
	Request  *deploy.Request
	Reporter *reporter.Reporter
	// Store receives one row per settled attempt; nil disables history
	Store *store.Store
	// Notifier receives settled outcomes filtered through Policy; nil
	// disables notifications
	Notifier notify.Notifier
	Policy   notify.Policy
	// DeployCtx bounds attempt subprocesses
	DeployCtx context.Context
}

// NewScheduler creates a scheduler; Trigger and InitialDeploy start work
func NewScheduler(opts SchedulerOptions) *Scheduler {
	ctx := opts.DeployCtx
	if ctx == nil {
		ctx = context.Background()
	}
	return &Scheduler{
		deployer:  opts.Deployer,
		request:   opts.Request,
		reporter:  opts.Reporter,
		store:     opts.Store,
		notifier:  opts.Notifier,
		policy:    opts.Policy,
		deployCtx: ctx,
	}
}

// Trigger requests a deploy. If an attempt is in flight the request is
// coalesced into a single pending follow-up carrying the latest cause;
// otherwise a new attempt starts on a worker goroutine.
func (s *Scheduler) Trigger(cause string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.deploying {
		s.pending = true
		s.cause = cause
		s.mu.Unlock()
		return
	}
	s.deploying = true
	s.pending = false
	s.count++
	seq := s.count
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runAttempts(seq, cause)
	}()
}

// InitialDeploy runs one synchronous attempt at session startup, before
// the watcher or key reader are armed. Its outcome is returned so the
// caller can report it; failure does not poison the scheduler.
func (s *Scheduler) InitialDeploy(cause string) *deploy.Outcome {
	s.mu.Lock()
	if s.closed || s.deploying {
		s.mu.Unlock()
		return nil
	}
	s.deploying = true
	s.pending = false
	s.count++
	seq := s.count
	s.mu.Unlock()

	return s.runAttempts(seq, cause)
}

// runAttempts executes one attempt, then drains any pending follow-up
// requests that accumulated while it ran. Follow-ups start immediately;
// the debounce delay applies only to fresh triggers. Returns the outcome
// of the last attempt in the chain.
func (s *Scheduler) runAttempts(seq int, cause string) *deploy.Outcome {
	var last *deploy.Outcome
	for {
		last = s.attempt(seq, cause)

		s.mu.Lock()
		if s.pending && !s.closed {
			s.pending = false
			s.count++
			seq = s.count
			cause = s.cause
			s.mu.Unlock()
			continue
		}
		s.pending = false
		s.deploying = false
		s.mu.Unlock()
		return last
	}
}

// attempt performs one deploy round-trip and settles its outcome. Every
// failure is converted into the outcome; nothing propagates past here.
func (s *Scheduler) attempt(seq int, cause string) *deploy.Outcome {
	s.reporter.DeployStarted(seq, cause)

	started := time.Now()
	result, err := s.deployer.Deploy(s.deployCtx, s.request)

	outcome := &deploy.Outcome{
		Seq:      seq,
		Cause:    cause,
		Started:  started,
		Duration: time.Since(started),
		Err:      err,
	}
	if result != nil {
		outcome.VersionID = result.VersionID
		outcome.URLs = result.URLs
	}

	s.settle(outcome)
	return outcome
}

func (s *Scheduler) settle(o *deploy.Outcome) {
	s.mu.Lock()
	if o.OK() {
		s.stats.Successful++
	} else {
		s.stats.Failed++
	}
	s.stats.TotalTime += o.Duration
	s.stats.LastDeploy = time.Now()
	recovered := o.OK() && s.lastFailed
	s.lastFailed = !o.OK()
	s.mu.Unlock()

	if o.OK() {
		s.reporter.DeploySucceeded(o.Seq, o.Duration, o.VersionID, o.URLs)
	} else {
		s.reporter.DeployFailed(o.Seq, o.Duration, o.Err)
	}

	if s.store != nil {
		if err := s.store.RecordDeployment(o); err != nil {
			log.Debug("failed to record deployment: %v", err)
		}
	}

	if s.notifier != nil && s.policy.Wants(o.OK(), recovered) {
		worker := ""
		if s.request != nil {
			worker = s.request.Name
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.notifier.Notify(ctx, notify.Event{
				Worker:    worker,
				Outcome:   o,
				Recovered: recovered,
			}); err != nil {
				log.Debug("notification failed: %v", err)
			}
		}()
	}
}

// Stats returns a snapshot of the deploy counters
func (s *Scheduler) Stats() types.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.stats
	snap.Attempts = s.count
	snap.InFlight = s.deploying
	snap.Pending = s.pending
	return snap
}

// Close stops accepting triggers. A pending follow-up is discarded; an
// in-flight attempt keeps running until it settles or its context is
// canceled.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.pending = false
	s.mu.Unlock()
}

// Wait blocks until the in-flight attempt chain settles, bounded by
// grace. Returns false on timeout.
func (s *Scheduler) Wait(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}
