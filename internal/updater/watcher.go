package updater

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ///////////////////////////////////////////////
// Node Watcher
// ///////////////////////////////////////////////

// NodeWatcher monitors a device node for appearance and removal using
// fsnotify on the parent directory, with a stat-based polling fallback.
// A modem reboot removes /dev/cdc-wdmN and recreates it a few seconds
// later; the watcher turns both edges into events.
type NodeWatcher struct {
	// path is the absolute path of the device node being monitored.
	path string
	// events delivers a signal each time the node appears or disappears.
	// The channel is buffered to 1 so rapid udev churn coalesces.
	events chan struct{}
	// done is closed by [NodeWatcher.Close] to signal goroutines to exit.
	done chan struct{}
	// fsw is the underlying fsnotify watcher; nil when polling.
	fsw *fsnotify.Watcher
	// once ensures [NodeWatcher.Close] is idempotent.
	once sync.Once
	// polling is true when the watcher has fallen back to polling.
	polling atomic.Bool
	// pollInterval is the duration between stat calls in polling mode.
	pollInterval time.Duration
}

// NewNodeWatcher creates a watcher for the given device node. It watches
// the node's parent directory (the node itself comes and goes) and falls
// back to polling if fsnotify is unavailable.
func NewNodeWatcher(devicePath string, pollInterval time.Duration) (*NodeWatcher, error) {
	w := &NodeWatcher{
		path:         devicePath,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: pollInterval,
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.polling.Store(true)
		go w.poll()
		return w, nil
	}

	w.fsw = fsw
	if err := fsw.Add(filepath.Dir(devicePath)); err != nil {
		slog.Info("cannot watch device directory, falling back to polling",
			"dir", filepath.Dir(devicePath), "error", err)
		fsw.Close()
		w.fsw = nil
		w.polling.Store(true)
		go w.poll()
		return w, nil
	}

	go w.watch()
	return w, nil
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *NodeWatcher) Polling() bool {
	return w.polling.Load()
}

// Events returns a channel that receives a signal when the node appears
// or disappears.
func (w *NodeWatcher) Events() <-chan struct{} {
	return w.events
}

// Exists reports whether the device node is currently present.
func (w *NodeWatcher) Exists() bool {
	_, err := os.Stat(w.path)
	return err == nil
}

// Close stops the watcher and releases resources.
func (w *NodeWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
		}
	})
	return err
}

// watch loops over fsnotify events on the parent directory, forwarding
// create/remove notifications for the watched node. If fsnotify errors,
// watch closes the native watcher and falls back to [NodeWatcher.poll].
func (w *NodeWatcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				w.notify()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Info("fsnotify error, switching to polling", "error", err)
			w.fsw.Close()
			w.fsw = nil
			w.polling.Store(true)
			go w.poll()
			return
		}
	}
}

// poll periodically stats the node and sends a notification when its
// existence flips. Runs as a fallback when fsnotify is unavailable.
func (w *NodeWatcher) poll() {
	last := w.Exists()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			now := w.Exists()
			if now != last {
				last = now
				w.notify()
			}
		}
	}
}

// notify sends a single signal to the events channel. If a signal is
// already pending the call is a no-op, coalescing rapid changes.
func (w *NodeWatcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
		// Channel already has a pending event, skip
	}
}
