package netwatch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// MarkerName is the file whose presence in the watched directory holds the
// monitor offline.
const MarkerName = "offline"

// SignalWatcher forces a Monitor offline while the marker file exists.
type SignalWatcher struct {
	watcher *fsnotify.Watcher
	monitor *Monitor
	dir     string
	marker  string
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *slog.Logger
}

func NewSignalWatcher(dir string, monitor *Monitor, log *slog.Logger) (*SignalWatcher, error) {
	if log == nil {
		log = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &SignalWatcher{
		watcher: watcher,
		monitor: monitor,
		dir:     dir,
		marker:  filepath.Join(dir, MarkerName),
		done:    make(chan struct{}),
		log:     log,
	}, nil
}

// Start applies the current marker state and begins watching the directory.
func (sw *SignalWatcher) Start() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.running {
		return fmt.Errorf("watcher already running")
	}
	if err := sw.watcher.Add(sw.dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", sw.dir, err)
	}
	sw.monitor.Force(MarkerPresent(sw.dir))

	sw.running = true
	sw.wg.Add(1)
	go sw.processEvents()
	return nil
}

// Stop stops watching. It blocks until the event loop has exited.
func (sw *SignalWatcher) Stop() error {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return sw.watcher.Close()
	}
	sw.running = false
	sw.mu.Unlock()

	close(sw.done)
	err := sw.watcher.Close()
	sw.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (sw *SignalWatcher) processEvents() {
	defer sw.wg.Done()

	for {
		select {
		case <-sw.done:
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != sw.marker {
				continue
			}
			switch {
			case event.Has(fsnotify.Create):
				sw.monitor.Force(true)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				sw.monitor.Force(MarkerPresent(sw.dir))
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.log.Warn("signal watcher error", "error", err)
		}
	}
}

// MarkerPresent reports whether dir holds the offline marker.
func MarkerPresent(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, MarkerName))
	return err == nil
}

// MarkOffline creates the offline marker in dir.
func MarkOffline(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, MarkerName), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create offline marker: %w", err)
	}
	return f.Close()
}

// MarkOnline removes the offline marker from dir.
func MarkOnline(dir string) error {
	err := os.Remove(filepath.Join(dir, MarkerName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove offline marker: %w", err)
	}
	return nil
}
