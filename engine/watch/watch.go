// Package watch implements the filesystem front edge (§4.7): a recursive
// fsnotify watch per configured directory, glob/ignore filtering, per-path
// debounce, and synthesis of QueueItems for the processing queue.
package watch

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lumenpipe/lumen/engine/config"
	"github.com/lumenpipe/lumen/engine/queue"
)

// Watcher subscribes to OS filesystem events for every directory in a
// config.MonitorConfig and enqueues synthesized QueueItems.
type Watcher struct {
	cfg   *config.MonitorConfig
	queue *queue.Queue
	fsw   *fsnotify.Watcher
	log   *slog.Logger

	mu        sync.Mutex
	lastSeen  map[string]time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once

	now func() time.Time
}

// New wires a Watcher over cfg and q. Call Start to begin delivering events.
func New(cfg *config.MonitorConfig, q *queue.Queue, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cfg:      cfg,
		queue:    q,
		fsw:      fsw,
		log:      logger,
		lastSeen: make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}, nil
}

// Start subscribes to every watched directory (recursively, per
// WatchedDirectory.Recursive) and begins draining fsnotify events in a
// background goroutine.
func (w *Watcher) Start() error {
	for _, wd := range w.cfg.Watched {
		if err := w.addDirectory(wd); err != nil {
			return err
		}
	}
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.loop()
	})
	return nil
}

// Stop halts event delivery and releases the underlying OS watch handles.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.fsw.Close()
}

func (w *Watcher) addDirectory(wd config.WatchedDirectory) error {
	if !wd.Recursive {
		return w.fsw.Add(wd.Path)
	}
	return filepath.WalkDir(wd.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Remove == fsnotify.Remove || event.Op&fsnotify.Rename == fsnotify.Rename {
		w.mu.Lock()
		delete(w.lastSeen, event.Name)
		w.mu.Unlock()
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return
	}

	wd, ok := w.cfg.DirectoryFor(event.Name)
	if !ok || !wd.AutoProcess {
		return
	}
	if !matchesAny(filepath.Base(event.Name), wd.Patterns) {
		return
	}
	if !w.cfg.IsFileSupported(event.Name) || w.cfg.ShouldIgnoreFile(event.Name) {
		return
	}
	if w.debounced(event.Name) {
		return
	}

	eventType := "modified"
	if event.Op&fsnotify.Create == fsnotify.Create {
		eventType = "created"
	}
	w.enqueue(*wd, event.Name, eventType)
}

// debounced applies the per-path debounce window: it always advances the
// path's last-seen timestamp (coalescing storms), and reports true when the
// event arrived inside the debounce window and should be dropped.
func (w *Watcher) debounced(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	prev, seen := w.lastSeen[path]
	w.lastSeen[path] = now
	if !seen {
		return false
	}
	return now.Sub(prev) < durationFromSeconds(w.cfg.DebounceSeconds)
}

func (w *Watcher) enqueue(wd config.WatchedDirectory, path, eventType string) {
	for _, task := range wd.ProcessingTasks {
		item := &queue.Item{
			Kind:          queue.KindFileProcess,
			FilePath:      path,
			Task:          task,
			ProcessorKind: w.cfg.DefaultProcessor,
			Source:        queue.SourceWatch,
			Priority:      queue.WatchPriority,
			Metadata: map[string]any{
				"event_type":         eventType,
				"watched_directory":  wd.Path,
				"directory_metadata": wd.Metadata,
				"store_in_vector_db": wd.StoreInVectorDB,
				"auto_generated":     true,
				"timestamp":          w.now().Unix(),
			},
		}
		if err := w.queue.Add(item); err != nil {
			w.log.Warn("failed to queue watcher item", "path", path, "task", task, "error", err)
		}
	}
}

// ProcessExistingFiles walks every watched directory (or, when dirPath is
// non-empty, just the one owning it) enqueueing one item per (file, task)
// pair for files already present, skipping the debounce check.
func (w *Watcher) ProcessExistingFiles(dirPath string) error {
	var dirs []config.WatchedDirectory
	if dirPath != "" {
		wd, ok := w.cfg.DirectoryFor(dirPath)
		if !ok {
			return nil
		}
		dirs = []config.WatchedDirectory{*wd}
	} else {
		dirs = w.cfg.Watched
	}

	for _, wd := range dirs {
		if err := w.scanDirectory(wd); err != nil {
			w.log.Warn("failed to scan watched directory", "path", wd.Path, "error", err)
		}
	}
	return nil
}

func (w *Watcher) scanDirectory(wd config.WatchedDirectory) error {
	return filepath.WalkDir(wd.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if !wd.Recursive && path != wd.Path {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchesAny(d.Name(), wd.Patterns) {
			return nil
		}
		if !w.cfg.IsFileSupported(path) || w.cfg.ShouldIgnoreFile(path) {
			return nil
		}
		w.enqueue(wd, path, "existing")
		return nil
	})
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
