package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	eventChannelBuffer = 100

	// DefaultDebounce is how long changes accumulate before they are reported.
	DefaultDebounce = 300 * time.Millisecond
)

// Op is the kind of change a watch event reports.
type Op string

// Watch operations.
const (
	OpCreate Op = "create"
	OpModify Op = "modify"
	OpDelete Op = "delete"
)

// WatchEvent reports one debounced change to a solver source.
type WatchEvent struct {
	// Path is relative to the watch root.
	Path    string
	AbsPath string
	Op      Op

	// Content and Hash are empty for OpDelete.
	Content string
	Hash    string
}

// Watcher reports changes to solver sources under a root directory. Saves
// that leave the content unchanged are not reported.
type Watcher struct {
	root       string
	debounce   time.Duration
	extensions map[string]bool
	files      map[string]bool
	logger     *slog.Logger

	fsw *fsnotify.Watcher

	// pending maps a path to the time of its last change; a path is
	// flushed once it has been quiet for the debounce interval.
	pendingMu sync.Mutex
	pending   map[string]time.Time

	hashMu sync.RWMutex
	hashes map[string]string

	events  chan WatchEvent
	dropped atomic.Int64
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the debounce interval.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExtensions sets the watched file extensions. The default is .py.
func WithExtensions(exts ...string) WatcherOption {
	return func(w *Watcher) {
		w.extensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			w.extensions[strings.ToLower(ext)] = true
		}
	}
}

// WithFiles restricts events to the given files. Paths are relative to the
// root or absolute.
func WithFiles(paths ...string) WatcherOption {
	return func(w *Watcher) {
		w.files = make(map[string]bool, len(paths))
		for _, p := range paths {
			w.files[p] = true
		}
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a watcher over root. Call Start to begin.
func NewWatcher(root string, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		root:       abs,
		debounce:   DefaultDebounce,
		extensions: map[string]bool{".py": true},
		logger:     slog.Default(),
		fsw:        fsw,
		pending:    make(map[string]time.Time),
		hashes:     make(map[string]string),
		events:     make(chan WatchEvent, eventChannelBuffer),
	}
	for _, opt := range opts {
		opt(w)
	}

	if len(w.files) > 0 {
		files := make(map[string]bool, len(w.files))
		for p := range w.files {
			if !filepath.IsAbs(p) {
				p = filepath.Join(abs, p)
			}
			files[filepath.Clean(p)] = true
		}
		w.files = files
	}
	return w, nil
}

// Events returns the event channel. It is closed when the watcher stops.
func (w *Watcher) Events() <-chan WatchEvent {
	return w.events
}

// Start seeds the hash cache from the files already present, adds watches
// and processes events until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatches(); err != nil {
		return err
	}
	go w.run(ctx)

	w.logger.Info("Source watcher started",
		"root", w.root,
		"debounce", w.debounce,
		"files", len(w.files))
	return nil
}

// Stop closes the underlying watcher.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

// Dropped returns how many events were dropped because the channel was full.
func (w *Watcher) Dropped() int64 {
	return w.dropped.Load()
}

func (w *Watcher) addWatches() error {
	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if w.wanted(path) {
				if content, err := os.ReadFile(path); err == nil {
					w.setHash(path, ContentHash(content))
				}
			}
			return nil
		}
		if path != w.root && excludedDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(max(w.debounce/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.record(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) record(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !excludedDir(filepath.Base(path)) {
				if err := w.fsw.Add(path); err != nil {
					w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
				}
			}
			return
		}
	}
	if !w.wanted(path) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] = time.Now()
	w.pendingMu.Unlock()
}

func (w *Watcher) wanted(path string) bool {
	if len(w.files) > 0 {
		return w.files[path]
	}
	return w.extensions[strings.ToLower(filepath.Ext(path))]
}

func (w *Watcher) flush(ctx context.Context) {
	now := time.Now()
	var batch []string
	w.pendingMu.Lock()
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			batch = append(batch, path)
			delete(w.pending, path)
		}
	}
	w.pendingMu.Unlock()

	for _, path := range batch {
		if ctx.Err() != nil {
			return
		}

		rel, _ := filepath.Rel(w.root, path)
		event := WatchEvent{Path: rel, AbsPath: path}

		content, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				w.logger.Warn("Failed to read changed source", "path", rel, "error", err)
				continue
			}
			if _, known := w.hash(path); !known {
				continue
			}
			w.deleteHash(path)
			event.Op = OpDelete
			w.send(event)
			continue
		}

		hash := ContentHash(content)
		old, known := w.hash(path)
		if known && old == hash {
			continue
		}
		w.setHash(path, hash)

		// Editors that save by rename produce Create for existing files;
		// the hash cache decides.
		event.Op = OpModify
		if !known {
			event.Op = OpCreate
		}
		event.Content = string(content)
		event.Hash = hash
		w.send(event)
	}
}

func (w *Watcher) send(event WatchEvent) {
	select {
	case w.events <- event:
		w.logger.Debug("Source change", "path", event.Path, "op", event.Op)
	default:
		n := w.dropped.Add(1)
		w.logger.Warn("Event channel full, dropping event", "path", event.Path, "total_dropped", n)
	}
}

func (w *Watcher) hash(path string) (string, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	h, ok := w.hashes[path]
	return h, ok
}

func (w *Watcher) setHash(path, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[path] = hash
}

func (w *Watcher) deleteHash(path string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	delete(w.hashes, path)
}
