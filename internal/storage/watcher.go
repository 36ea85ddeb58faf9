package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/litekeeper/litekeeper/internal/logging"
)

// debounceWindow coalesces the bursts of events a single SQLite write
// produces across the main file and its sidecars.
const debounceWindow = 100 * time.Millisecond

// WatchEvent describes one observed change to the database file or a
// sidecar.
type WatchEvent struct {
	Path string
	Op   string
}

// Watcher monitors the database file for external modification. It watches
// the parent directory, because editors, sync clients, and restores replace
// files by rename, which a watch on the file itself would lose.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	targets map[string]bool
	events  chan WatchEvent
	stop    chan struct{}
	once    sync.Once
	logger  *logging.Logger

	mu       sync.Mutex
	last     WatchEvent
	debounce *time.Timer
	closed   bool
}

// NewWatcher starts watching the database file at path.
func NewWatcher(path string, logger *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	targets := make(map[string]bool, 4)
	for _, p := range append([]string{path}, SidecarPaths(path)...) {
		targets[filepath.Base(p)] = true
	}

	w := &Watcher{
		path:    path,
		watcher: fw,
		targets: targets,
		events:  make(chan WatchEvent, 1),
		stop:    make(chan struct{}),
		logger:  logger.WithComponent("watcher").WithPath(path),
	}
	go w.loop()
	return w, nil
}

// Changes returns the channel debounced change events arrive on. The
// channel is closed by Close.
func (w *Watcher) Changes() <-chan WatchEvent { return w.events }

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.targets[filepath.Base(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Chmod) == 0 {
				continue
			}
			w.schedule(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("file watcher error", "error", err)
		}
	}
}

// schedule records the event and (re)arms the debounce timer. Only the
// last event of a burst is delivered.
func (w *Watcher) schedule(ev fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.last = WatchEvent{Path: ev.Name, Op: ev.Op.String()}
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debounceWindow, w.emit)
}

func (w *Watcher) emit() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.events <- w.last:
	default:
	}
}

// Close stops the watcher and closes the Changes channel.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		if w.debounce != nil {
			w.debounce.Stop()
		}
		w.mu.Unlock()

		close(w.stop)
		err = w.watcher.Close()
		close(w.events)
	})
	return err
}
