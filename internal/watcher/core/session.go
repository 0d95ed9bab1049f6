// Package core owns the watch-deploy orchestration loop: the debouncer
// that batches change bursts, the scheduler that serializes deploy
// attempts, and the session that wires watcher, keys, reporter and store
// into one consumer loop.
package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"workerwatch/internal/config"
	"workerwatch/internal/deploy"
	"workerwatch/internal/log"
	"workerwatch/internal/notify"
	"workerwatch/internal/store"
	"workerwatch/internal/watcher/filesystem"
	"workerwatch/internal/watcher/reporter"
	"workerwatch/internal/watcher/types"
)

// SessionOptions wires a watch session's collaborators
type SessionOptions struct {
	Config   *config.File
	Watch    types.Config
	Request  *deploy.Request
	Deployer deploy.Deployer
	// Reporter defaults to condensed output on stdout
	Reporter *reporter.Reporter
	// Store persists deployment history and the account-ID cache; nil
	// disables persistence
	Store    *store.Store
	Notifier notify.Notifier
	Policy   notify.Policy
}

// Session runs one watch-deploy loop. All asynchronous sources (file
// watcher, debounce timer, key reader, socket) feed one event channel
// consumed by Run, so scheduler calls are serialized in arrival order.
type Session struct {
	cfg       *config.File
	wcfg      types.Config
	reporter  *reporter.Reporter
	sched     *Scheduler
	watcher   *filesystem.Watcher
	debouncer *Debouncer
	keys      *KeyReader
	store     *store.Store
	events    chan types.Event
	targets   []string

	cancelDeploys context.CancelFunc

	mu   sync.Mutex
	stop context.CancelFunc

	// lastChange is only touched from the consumer loop
	lastChange string
}

// NewSession assembles a session from resolved configuration. Nothing
// starts until Run.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("session requires a config")
	}
	if opts.Request == nil || opts.Deployer == nil {
		return nil, fmt.Errorf("session requires a deployer and request")
	}

	rep := opts.Reporter
	if rep == nil {
		rep = reporter.New(os.Stdout, opts.Config.Root(), opts.Watch.Verbose)
	}

	events := make(chan types.Event, 64)
	deployCtx, cancelDeploys := context.WithCancel(context.Background())

	watcher, err := filesystem.New(opts.Watch.IgnorePatterns, events)
	if err != nil {
		cancelDeploys()
		return nil, err
	}

	s := &Session{
		cfg:      opts.Config,
		wcfg:     opts.Watch,
		reporter: rep,
		watcher:  watcher,
		store:    opts.Store,
		events:   events,
		targets:  WatchTargets(opts.Config),

		cancelDeploys: cancelDeploys,
	}
	s.sched = NewScheduler(SchedulerOptions{
		Deployer:  opts.Deployer,
		Request:   opts.Request,
		Reporter:  rep,
		Store:     opts.Store,
		Notifier:  opts.Notifier,
		Policy:    opts.Policy,
		DeployCtx: deployCtx,
	})
	s.debouncer = NewDebouncer(opts.Watch.Debounce, func() {
		s.pushEvent(types.Event{Kind: types.EventDeployTrigger})
	})
	s.keys = NewKeyReader(events)
	return s, nil
}

// WatchTargets derives the static watch set from a resolved config: the
// config file itself, the entry file and its parent directory, and the
// assets and site directories when configured. Computed once per session.
func WatchTargets(cfg *config.File) []string {
	seen := make(map[string]bool)
	var targets []string
	add := func(path string) {
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		targets = append(targets, path)
	}

	add(cfg.Path)
	if main := cfg.Resolve(cfg.Main); main != "" {
		add(main)
		add(filepath.Dir(main))
	}
	add(cfg.Resolve(cfg.Assets))
	add(cfg.Resolve(cfg.Site))
	return targets
}

// pushEvent offers an event to the consumer loop without blocking the
// producer. A full channel drops the event; file changes are re-rolled by
// the next debounce firing and the scheduler coalesces triggers anyway.
func (s *Session) pushEvent(ev types.Event) {
	select {
	case s.events <- ev:
	default:
		log.Debug("event channel full, dropping %v", ev.Kind)
	}
}

// Run executes the session until ctx is canceled or the user quits.
// Startup order matters: the initial deploy runs before the key reader is
// armed so raw mode cannot contend with the deploy CLI's own prompts, and
// before the watcher is armed so deploy output cannot feed back as
// change events mid-attempt.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.stop = cancel
	s.mu.Unlock()

	s.reporter.Banner(s.cfg.Name, s.targets, s.wcfg.Debounce)

	s.sched.InitialDeploy("startup")

	if !s.wcfg.DaemonMode && s.keys.Supported() {
		if err := s.keys.Start(); err != nil {
			log.Debug("interactive keys unavailable: %v", err)
		}
	}

	for _, target := range s.targets {
		if err := s.watcher.Add(target); err != nil {
			log.Warn("cannot watch %s: %v", target, err)
		}
	}
	s.watcher.Start()
	log.Debug("watching %d paths", s.watcher.WatchCount())

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case ev := <-s.events:
			if quit := s.handleEvent(ev); quit {
				return s.shutdown()
			}
		}
	}
}

// handleEvent processes one event from the unified channel. Returns true
// when the session should shut down.
func (s *Session) handleEvent(ev types.Event) bool {
	switch ev.Kind {
	case types.EventFileChanged:
		s.lastChange = ev.Path
		s.reporter.FileChanged(ev.Path, ev.Op)
		s.debouncer.Signal()

	case types.EventDeployTrigger:
		cause := ev.Cause
		if cause == "" {
			cause = s.changeCause()
		}
		s.sched.Trigger(cause)

	case types.EventKey:
		return s.handleKey(ev.Key)
	}
	return false
}

func (s *Session) changeCause() string {
	if s.lastChange == "" {
		return "file change"
	}
	rel, err := filepath.Rel(s.cfg.Root(), s.lastChange)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = s.lastChange
	}
	return rel + " changed"
}

func (s *Session) handleKey(key byte) bool {
	switch key {
	case KeyRedeploy:
		s.sched.Trigger("manual")
	case KeyClear:
		s.reporter.ClearScreen()
		s.reporter.Banner(s.cfg.Name, s.targets, s.wcfg.Debounce)
	case KeyStats:
		s.reporter.ShowStats(s.sched.Stats())
	case KeyHelp, KeyHelpAlt:
		s.reporter.ShowHelp()
	case KeyQuit, KeyCtrlC:
		return true
	}
	return false
}

// shutdown drains the session: no new triggers, producers stopped, then
// the in-flight attempt gets the grace period to settle before its
// subprocess is killed. Always ends with the final summary.
func (s *Session) shutdown() error {
	s.sched.Close()
	s.watcher.Stop()
	s.debouncer.Stop()
	s.keys.Stop()

	if !s.sched.Wait(s.wcfg.ShutdownGrace) {
		log.Warn("deploy still running after %s, killing it", s.wcfg.ShutdownGrace)
		s.cancelDeploys()
		s.sched.Wait(5 * time.Second)
	}
	s.cancelDeploys()

	s.reporter.FinalSummary(s.sched.Stats())
	return nil
}

// Stats exposes the scheduler counters for the socket handlers
func (s *Session) Stats() types.Stats {
	return s.sched.Stats()
}

// TriggerDeploy requests a deploy through the unified channel, keeping
// socket-initiated deploys serialized with every other trigger source.
func (s *Session) TriggerDeploy(cause string) {
	s.pushEvent(types.Event{Kind: types.EventDeployTrigger, Cause: cause})
}

// RequestStop asks the running session to shut down gracefully
func (s *Session) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		s.stop()
	}
}

// Store exposes the session's state store for the socket handlers
func (s *Session) Store() *store.Store {
	return s.store
}

// WorkerName returns the deployed worker's name
func (s *Session) WorkerName() string {
	return s.cfg.Name
}
