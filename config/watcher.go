// OpenAPI 文档目录监听器实现。
//
// 轮询目录内的文档文件，合并防抖后按批次触发回调。
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 监听器类型定义 ---

// DirWatcher polls a directory for OpenAPI documents.
type DirWatcher struct {
	mu sync.RWMutex

	// 配置
	dir           string
	extensions    map[string]bool
	pollInterval  time.Duration
	debounceDelay time.Duration

	// 状态
	running   bool
	stopChan  chan struct{}
	eventChan chan FileEvent

	// 回调
	callbacks []func(events []FileEvent)

	// 记录器
	logger *zap.Logger

	// 已知文件的最后修改时间
	lastModTimes map[string]time.Time
}

// FileEvent represents a file change event
type FileEvent struct {
	// Path 是改变的文件路径
	Path string `json:"path"`

	// Op 是操作类型
	Op FileOp `json:"op"`

	// Timestamp 是检测到变更的时间
	Timestamp time.Time `json:"timestamp"`
}

// FileOp represents file operation types
type FileOp int

const (
	// FileOpCreate 表示文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 指示文件已被修改
	FileOpWrite
	// FileOpRemove 表示文件已被删除
	FileOpRemove
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// --- 监听器选项 ---

// WatcherOption configures the DirWatcher
type WatcherOption func(*DirWatcher)

// WithPollInterval sets how often the directory is scanned.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *DirWatcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithDebounceDelay sets the debounce delay for file events
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *DirWatcher) {
		w.debounceDelay = d
	}
}

// WithExtensions replaces the watched file extensions.
func WithExtensions(exts ...string) WatcherOption {
	return func(w *DirWatcher) {
		w.extensions = make(map[string]bool, len(exts))
		for _, e := range exts {
			w.extensions[strings.ToLower(e)] = true
		}
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *DirWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// --- 监听器实现 ---

// NewDirWatcher creates a watcher for dir. A missing directory is allowed
// and picked up once it appears.
func NewDirWatcher(dir string, opts ...WatcherOption) (*DirWatcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	w := &DirWatcher{
		dir:           abs,
		extensions:    map[string]bool{".json": true, ".yaml": true, ".yml": true},
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		eventChan:     make(chan FileEvent, 100),
		lastModTimes:  make(map[string]time.Time),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "spec_dir_watcher"))

	info, err := os.Stat(abs)
	switch {
	case os.IsNotExist(err):
		w.logger.Warn("spec directory does not exist, will watch for creation", zap.String("dir", abs))
	case err != nil:
		return nil, fmt.Errorf("failed to stat path %s: %w", abs, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	return w, nil
}

// Dir returns the watched directory.
func (w *DirWatcher) Dir() string { return w.dir }

// Files lists the matching documents currently in the directory, sorted.
func (w *DirWatcher) Files() ([]string, error) {
	mods, err := w.scan()
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(mods))
	for p := range mods {
		files = append(files, p)
	}
	sort.Strings(files)
	return files, nil
}

// OnChange registers a callback for batches of file change events
func (w *DirWatcher) OnChange(callback func([]FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching. Files present at start produce no events.
func (w *DirWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	stop := make(chan struct{})
	w.stopChan = stop
	if mods, err := w.scan(); err == nil {
		w.lastModTimes = mods
	}
	w.mu.Unlock()

	go w.pollLoop(ctx, stop)
	go w.dispatchLoop(ctx, stop)

	w.logger.Info("spec directory watcher started",
		zap.String("dir", w.dir),
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("debounce_delay", w.debounceDelay))
	return nil
}

// Stop stops the watcher
func (w *DirWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	close(w.stopChan)
	w.running = false

	w.logger.Info("spec directory watcher stopped")
	return nil
}

// IsRunning returns whether the watcher is running
func (w *DirWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *DirWatcher) pollLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			w.checkFiles()
		}
	}
}

// scan returns modification times of matching regular files.
func (w *DirWatcher) scan() (map[string]time.Time, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]time.Time{}, nil
		}
		return nil, err
	}
	mods := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		if e.IsDir() || !w.extensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		mods[filepath.Join(w.dir, e.Name())] = info.ModTime()
	}
	return mods, nil
}

// checkFiles diffs the directory against the last scan. An event that
// cannot be queued is retried on the next poll.
func (w *DirWatcher) checkFiles() {
	mods, err := w.scan()
	if err != nil {
		w.logger.Warn("failed to scan spec directory", zap.Error(err))
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	for path := range w.lastModTimes {
		if _, ok := mods[path]; ok {
			continue
		}
		if w.emit(FileEvent{Path: path, Op: FileOpRemove, Timestamp: now}) {
			delete(w.lastModTimes, path)
		}
	}
	for path, mod := range mods {
		lastMod, existed := w.lastModTimes[path]
		switch {
		case !existed:
			if w.emit(FileEvent{Path: path, Op: FileOpCreate, Timestamp: now}) {
				w.lastModTimes[path] = mod
			}
		case mod.After(lastMod):
			if w.emit(FileEvent{Path: path, Op: FileOpWrite, Timestamp: now}) {
				w.lastModTimes[path] = mod
			}
		}
	}
}

func (w *DirWatcher) emit(event FileEvent) bool {
	select {
	case w.eventChan <- event:
		return true
	default:
		w.logger.Warn("event queue full, deferring", zap.String("path", event.Path))
		return false
	}
}

// dispatchLoop batches events per path and delivers them once the
// directory has been quiet for the debounce delay.
func (w *DirWatcher) dispatchLoop(ctx context.Context, stop <-chan struct{}) {
	pending := make(map[string]FileEvent)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case event := <-w.eventChan:
			// 同一路径只保留最新事件
			if prev, ok := pending[event.Path]; ok && prev.Op == FileOpCreate && event.Op == FileOpWrite {
				event.Op = FileOpCreate
			}
			pending[event.Path] = event
			timer.Reset(w.debounceDelay)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]FileEvent, 0, len(pending))
			for _, evt := range pending {
				batch = append(batch, evt)
			}
			sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
			pending = make(map[string]FileEvent)

			w.mu.RLock()
			callbacks := make([]func([]FileEvent), len(w.callbacks))
			copy(callbacks, w.callbacks)
			w.mu.RUnlock()

			for _, evt := range batch {
				w.logger.Debug("dispatching file event",
					zap.String("path", evt.Path),
					zap.String("op", evt.Op.String()))
			}
			for _, cb := range callbacks {
				cb(batch)
			}
		}
	}
}
