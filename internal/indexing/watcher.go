package indexing

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/quietbeacon/epi/internal/config"
	"github.com/quietbeacon/epi/internal/debug"
)

// FileWatcher watches the manual tree and fires one debounced reload
// callback per burst of relevant changes. Reloads are wholesale, so
// the callback receives the changed paths for logging only; the loader
// always rebuilds from a fresh scan.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	scanner   *Scanner
	root      string
	debouncer *reloadDebouncer

	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.RWMutex
	watched map[string]bool

	eventsSeen       int64
	reloadsTriggered int64

	statsMu   sync.Mutex
	lastEvent time.Time
}

// WatchStats is a point-in-time snapshot of watcher activity.
type WatchStats struct {
	WatchedDirs      int       `json:"watched_dirs"`
	EventsSeen       int64     `json:"events_seen"`
	ReloadsTriggered int64     `json:"reloads_triggered"`
	LastEvent        time.Time `json:"last_event,omitempty"`
}

// NewFileWatcher creates a watcher over cfg's manual tree. onReload
// runs on the debounce timer's goroutine; callers serialize their own
// reload path.
func NewFileWatcher(cfg *config.Config, onReload func(changed []string)) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	delay := time.Duration(cfg.Load.WatchDebounceMs) * time.Millisecond
	if delay <= 0 {
		delay = time.Duration(config.DefaultWatchDebounceMs) * time.Millisecond
	}

	fw := &FileWatcher{
		watcher: w,
		scanner: NewScanner(cfg),
		root:    cfg.Project.Root,
		done:    make(chan struct{}),
		watched: make(map[string]bool),
	}
	fw.debouncer = newReloadDebouncer(delay, func(changed []string) {
		atomic.AddInt64(&fw.reloadsTriggered, 1)
		debug.LogLoad("watch: %d changed paths, triggering reload", len(changed))
		onReload(changed)
	})
	return fw, nil
}

// Start registers watches on the manual tree and begins processing
// events.
func (fw *FileWatcher) Start() error {
	info, err := os.Stat(fw.root)
	if err != nil {
		return fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s: not a directory", fw.root)
	}

	fw.addWatches(fw.root, make(map[string]bool))

	fw.mu.RLock()
	count := len(fw.watched)
	fw.mu.RUnlock()
	if count == 0 {
		return fmt.Errorf("watch root %s: no watchable directories", fw.root)
	}

	fw.wg.Add(1)
	go fw.processEvents()

	debug.LogLoad("watch: started on %s (%d directories)", fw.root, count)
	return nil
}

// Stop shuts the watcher down. Pending debounced work is dropped, not
// flushed; shutdown must not trigger a reload.
func (fw *FileWatcher) Stop() error {
	close(fw.done)
	fw.debouncer.stop()
	err := fw.watcher.Close()
	fw.wg.Wait()
	debug.LogLoad("watch: stopped")
	return err
}

// Stats reports watcher activity counters.
func (fw *FileWatcher) Stats() WatchStats {
	fw.mu.RLock()
	dirs := len(fw.watched)
	fw.mu.RUnlock()

	fw.statsMu.Lock()
	last := fw.lastEvent
	fw.statsMu.Unlock()

	return WatchStats{
		WatchedDirs:      dirs,
		EventsSeen:       atomic.LoadInt64(&fw.eventsSeen),
		ReloadsTriggered: atomic.LoadInt64(&fw.reloadsTriggered),
		LastEvent:        last,
	}
}

// addWatches registers dir and every subdirectory the scanner would
// descend into. Symlinked directories are resolved before recursing so
// cycles terminate.
func (fw *FileWatcher) addWatches(dir string, visited map[string]bool) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return
	}
	if visited[resolved] {
		return
	}
	visited[resolved] = true

	if rel, err := filepath.Rel(fw.root, dir); err == nil && rel != "." {
		if fw.scanner.shouldSkipDir(filepath.ToSlash(rel)) {
			return
		}
	}

	if err := fw.watcher.Add(dir); err != nil {
		debug.LogLoad("watch: cannot watch %s: %v", dir, err)
		return
	}
	fw.mu.Lock()
	fw.watched[dir] = true
	fw.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			fw.addWatches(filepath.Join(dir, entry.Name()), visited)
		}
	}
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()
	for {
		select {
		case <-fw.done:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			debug.LogLoad("watch: error: %v", err)
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	atomic.AddInt64(&fw.eventsSeen, 1)
	fw.statsMu.Lock()
	fw.lastEvent = time.Now()
	fw.statsMu.Unlock()

	// New directories get watched immediately so manuals created
	// inside them are seen without a restart.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			fw.addWatches(event.Name, make(map[string]bool))
			return
		}
	}

	rel, ok := fw.relevant(event)
	if !ok {
		return
	}
	fw.debouncer.noteChange(rel)
}

// relevant reports whether the event touches a path the scanner would
// pick up, returning the root-relative path. Removed files cannot be
// stat'd, so matching is by pattern alone.
func (fw *FileWatcher) relevant(event fsnotify.Event) (string, bool) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return "", false
	}
	rel, err := filepath.Rel(fw.root, event.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if !fw.scanner.matchesInclude(rel) || fw.scanner.matchesExclude(rel) {
		return "", false
	}
	return rel, true
}

// reloadDebouncer collapses bursts of change notifications into a
// single callback after a quiet period. Every new change resets the
// timer.
type reloadDebouncer struct {
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	delay   time.Duration
	fire    func(changed []string)
	stopped bool
}

func newReloadDebouncer(delay time.Duration, fire func(changed []string)) *reloadDebouncer {
	return &reloadDebouncer{
		pending: make(map[string]struct{}),
		delay:   delay,
		fire:    fire,
	}
}

func (d *reloadDebouncer) noteChange(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending[path] = struct{}{}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *reloadDebouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	changed := make([]string, 0, len(d.pending))
	for p := range d.pending {
		changed = append(changed, p)
	}
	d.pending = make(map[string]struct{})
	d.mu.Unlock()

	sort.Strings(changed)
	d.fire(changed)
}

// stop drops pending work without a final flush.
func (d *reloadDebouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
