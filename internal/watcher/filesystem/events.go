package filesystem

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"workerwatch/internal/log"
	"workerwatch/internal/watcher/types"
)

// Watcher forwards filtered filesystem changes into the session's event
// channel and keeps watches armed as new directories appear under the
// watched roots.
type Watcher struct {
	fs       *fsnotify.Watcher
	matcher  *Matcher
	out      chan<- types.Event
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a watcher forwarding accepted events into out
func New(ignorePatterns []string, out chan<- types.Event) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	return &Watcher{
		fs:      fsWatcher,
		matcher: NewMatcher(ignorePatterns),
		out:     out,
		done:    make(chan struct{}),
	}, nil
}

// Add arms a watch target. Files are watched directly, directories
// recursively with ignored subtrees skipped.
func (w *Watcher) Add(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watch target %s: %w", path, err)
	}
	if !info.IsDir() {
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	}
	return w.addRecursive(path)
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && ShouldIgnoreDir(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// WatchCount returns the number of armed watch paths
func (w *Watcher) WatchCount() int {
	return len(w.fs.WatchList())
}

// Start runs the event loop in the background
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop tears the watcher down and waits for the loop to exit.
// Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fs.Close()
	})
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Error("watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Directories created under a watched root get armed as they appear
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !ShouldIgnoreDir(event.Name) {
				if err := w.addRecursive(event.Name); err != nil {
					log.Debug("failed to arm new directory %s: %v", event.Name, err)
				}
			}
		}
	}

	if !ShouldProcessEvent(event, w.matcher) {
		return
	}

	ev := types.Event{
		Kind: types.EventFileChanged,
		Path: event.Name,
		Op:   OpString(event.Op),
	}
	select {
	case w.out <- ev:
	case <-w.done:
	}
}
