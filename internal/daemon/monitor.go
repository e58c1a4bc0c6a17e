package daemon

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/valentindosimont/ccem/internal/usage"
)

type fileState struct {
	size    int64
	modTime time.Time
}

// Monitor watches the projects directory for session log changes. It uses
// fsnotify when available and always polls as a fallback. Bursts of
// changes are coalesced into a single notification.
type Monitor struct {
	root         string
	pollInterval time.Duration
	debounce     time.Duration
	logger       *slog.Logger

	files    map[string]fileState
	stopCh   chan struct{}
	doneCh   chan struct{}
	updateCh chan struct{}
}

// NewMonitor creates a Monitor for root.
func NewMonitor(root string, pollInterval, debounce time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Monitor{
		root:         root,
		pollInterval: pollInterval,
		debounce:     debounce,
		logger:       logger,
		files:        make(map[string]fileState),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		updateCh:     make(chan struct{}, 1),
	}
}

// Changes receives a value after log files change.
func (m *Monitor) Changes() <-chan struct{} {
	return m.updateCh
}

// Start begins watching.
func (m *Monitor) Start() {
	m.poll()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Debug("fsnotify unavailable, polling only", "error", err)
		w = nil
	} else {
		m.watchTree(w)
	}
	go m.loop(w)
}

// Stop stops the monitor and waits for its loop to exit.
func (m *Monitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

func (m *Monitor) watchTree(w *fsnotify.Watcher) {
	if err := w.Add(m.root); err != nil {
		m.logger.Debug("watch projects dir", "dir", m.root, "error", err)
		return
	}
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(m.root, e.Name())
		if err := w.Add(dir); err != nil {
			m.logger.Debug("watch project dir", "dir", dir, "error", err)
		}
	}
}

func (m *Monitor) loop(w *fsnotify.Watcher) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	var events chan fsnotify.Event
	var errs chan error
	if w != nil {
		defer func() { _ = w.Close() }()
		events = w.Events
		errs = w.Errors
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-m.stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if m.relevant(w, ev) && debounce == nil {
				debounce = time.After(m.debounce)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.logger.Debug("fsnotify error", "error", err)
		case <-ticker.C:
			if m.poll() && debounce == nil {
				debounce = time.After(m.debounce)
			}
		case <-debounce:
			debounce = nil
			m.poll()
			select {
			case m.updateCh <- struct{}{}:
			default:
			}
		}
	}
}

func (m *Monitor) relevant(w *fsnotify.Watcher, ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == m.root {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.Add(ev.Name); err != nil {
				m.logger.Debug("watch new project dir", "dir", ev.Name, "error", err)
			}
			return true
		}
	}
	if ev.Has(fsnotify.Remove) && filepath.Dir(ev.Name) == m.root {
		return true
	}
	return strings.HasSuffix(ev.Name, usage.LogExt)
}

// poll refreshes the fingerprint of every log file and reports whether
// anything was added, removed or modified.
func (m *Monitor) poll() bool {
	current := make(map[string]fileState)
	for _, path := range usage.ListLogFiles(m.root, m.logger) {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		current[path] = fileState{size: info.Size(), modTime: info.ModTime()}
	}

	changed := len(current) != len(m.files)
	if !changed {
		for path, st := range current {
			prev, ok := m.files[path]
			if !ok || prev.size != st.size || !prev.modTime.Equal(st.modTime) {
				changed = true
				break
			}
		}
	}
	m.files = current
	return changed
}
