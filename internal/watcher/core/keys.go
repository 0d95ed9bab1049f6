package core

import (
	"os"
	"sync"

	"golang.org/x/term"

	"workerwatch/internal/log"
	"workerwatch/internal/watcher/types"
)

// Interactive key bindings. Ctrl-C arrives as a raw byte once the
// terminal is in raw mode.
const (
	KeyRedeploy = 'r'
	KeyClear    = 'c'
	KeyStats    = 's'
	KeyHelp     = 'h'
	KeyHelpAlt  = '?'
	KeyQuit     = 'q'
	KeyCtrlC    = 0x03
)

// KeyReader feeds single keypresses from a raw-mode terminal into the
// session's event channel. Armed only when stdin is a terminal, and only
// after the initial deploy settles so raw mode cannot fight the deploy
// CLI's own prompts.
type KeyReader struct {
	out      chan<- types.Event
	fd       int
	oldState *term.State
	done     chan struct{}
	stopOnce sync.Once
}

// NewKeyReader creates a key reader writing into out
func NewKeyReader(out chan<- types.Event) *KeyReader {
	return &KeyReader{
		out:  out,
		fd:   int(os.Stdin.Fd()),
		done: make(chan struct{}),
	}
}

// Supported reports whether stdin can deliver keypresses
func (k *KeyReader) Supported() bool {
	return term.IsTerminal(k.fd)
}

// Start switches the terminal to raw mode and begins reading
func (k *KeyReader) Start() error {
	oldState, err := term.MakeRaw(k.fd)
	if err != nil {
		return err
	}
	k.oldState = oldState

	go k.loop()
	return nil
}

func (k *KeyReader) loop() {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		select {
		case <-k.done:
			return
		default:
		}
		if err != nil {
			log.Debug("key reader stopped: %v", err)
			return
		}
		if n == 0 {
			continue
		}
		select {
		case k.out <- types.Event{Kind: types.EventKey, Key: buf[0]}:
		case <-k.done:
			return
		}
	}
}

// Stop restores the terminal state. The read goroutine exits after the
// next byte arrives or stdin closes; it holds no resources beyond the
// read itself.
func (k *KeyReader) Stop() {
	k.stopOnce.Do(func() {
		close(k.done)
		if k.oldState != nil {
			if err := term.Restore(k.fd, k.oldState); err != nil {
				log.Debug("failed to restore terminal: %v", err)
			}
		}
	})
}
