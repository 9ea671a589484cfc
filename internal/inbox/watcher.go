package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ShayCichocki/conductor/internal/orchestrator"
)

const (
	// ProcessedDir holds task files whose tasks were all accepted.
	ProcessedDir = "processed"
	// FailedDir holds task files that could not be parsed or submitted.
	FailedDir = "failed"
	// StopFile stops a running Watcher when created in the inbox.
	StopFile = "stop"
)

// Handler receives the tasks parsed from one file. Returning an error moves
// the file to FailedDir.
type Handler func(ctx context.Context, file string, tasks []orchestrator.TaskRequest) error

// Watcher picks up *.yaml and *.yml files from a directory, hands their
// tasks to a Handler and files them away afterwards.
type Watcher struct {
	dir          string
	handler      Handler
	logger       *zap.Logger
	pollInterval time.Duration
	settle       time.Duration

	processed atomic.Int64
	failed    atomic.Int64
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithPollInterval sets how often the directory is rescanned in addition
// to filesystem events.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithSettleDelay sets how long a file must go unmodified before it is read.
func WithSettleDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.settle = d
		}
	}
}

// NewWatcher creates the inbox directory and its processed and failed
// subdirectories.
func NewWatcher(dir string, handler Handler, opts ...Option) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("inbox handler is required")
	}
	for _, d := range []string{dir, filepath.Join(dir, ProcessedDir), filepath.Join(dir, FailedDir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("create inbox directory: %w", err)
		}
	}

	w := &Watcher{
		dir:          dir,
		handler:      handler,
		logger:       zap.NewNop(),
		pollInterval: 2 * time.Second,
		settle:       100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "inbox"), zap.String("dir", dir))
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Processed returns the number of files handled successfully.
func (w *Watcher) Processed() int64 { return w.processed.Load() }

// Failed returns the number of files moved to FailedDir.
func (w *Watcher) Failed() int64 { return w.failed.Load() }

// Run watches the inbox until ctx is done or a stop file appears. Files
// already present are handled first. A stop file is consumed and Run
// returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var errs <-chan error

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("filesystem events unavailable, polling only", zap.Error(err))
	} else {
		defer fw.Close()
		if err := fw.Add(w.dir); err != nil {
			w.logger.Warn("cannot watch inbox, polling only", zap.Error(err))
		} else {
			events, errs = fw.Events, fw.Errors
		}
	}

	w.logger.Info("inbox watcher started", zap.Duration("poll_interval", w.pollInterval))
	if w.scan(ctx) {
		return nil
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	debounce := time.NewTimer(w.settle)
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped")
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 && w.relevant(ev.Name) {
				debounce.Reset(w.settle)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-debounce.C:
			if w.scan(ctx) {
				return nil
			}
		case <-ticker.C:
			if w.scan(ctx) {
				return nil
			}
		}
	}
}

func (w *Watcher) relevant(path string) bool {
	base := filepath.Base(path)
	return base == StopFile || isTaskFile(base)
}

func isTaskFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// scan handles every settled task file in name order and reports whether
// a stop file was found. Task files are handled before the stop file is
// honoured.
func (w *Watcher) scan(ctx context.Context) bool {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Error("read inbox", zap.Error(err))
		return false
	}

	var files []string
	stop := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == StopFile {
			stop = true
			continue
		}
		if !isTaskFile(name) {
			continue
		}
		info, err := e.Info()
		if err != nil || time.Since(info.ModTime()) < w.settle {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)

	for _, name := range files {
		if ctx.Err() != nil {
			return false
		}
		w.handle(ctx, name)
	}

	if stop {
		if err := os.Remove(filepath.Join(w.dir, StopFile)); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("remove stop file", zap.Error(err))
		}
		w.logger.Info("stop file found, inbox watcher stopping")
	}
	return stop
}

func (w *Watcher) handle(ctx context.Context, name string) {
	path := filepath.Join(w.dir, name)
	logger := w.logger.With(zap.String("file", name))

	tasks, err := LoadTasks(path)
	if err == nil {
		err = w.handler(ctx, name, tasks)
	}

	dest := ProcessedDir
	if err != nil {
		dest = FailedDir
		w.failed.Add(1)
		logger.Error("task file rejected", zap.Error(err))
	} else {
		w.processed.Add(1)
		logger.Info("task file accepted", zap.Int("tasks", len(tasks)))
	}

	if err := w.move(name, dest); err != nil {
		logger.Error("move task file", zap.String("dest", dest), zap.Error(err))
	}
}

// move renames name into sub, adding a timestamp if the target exists.
func (w *Watcher) move(name, sub string) error {
	target := filepath.Join(w.dir, sub, name)
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		target = filepath.Join(w.dir, sub, fmt.Sprintf("%s-%d%s", stem, time.Now().UnixNano(), ext))
	}
	return os.Rename(filepath.Join(w.dir, name), target)
}
