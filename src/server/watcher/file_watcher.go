// Package watcher reports on-disk changes to source files so open documents can
// be resynchronized with the language server.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"lspclient/src/internal/common"
	"lspclient/src/internal/constants"
	"lspclient/src/internal/gitignore"
)

// Op is the kind of change observed
type Op string

const (
	OpWrite  Op = "write"
	OpCreate Op = "create"
	OpRemove Op = "remove"
	OpRename Op = "rename"
)

// Event is a debounced file change
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// FileWatcher watches directory trees and reports batches of changes to files
// with the configured extensions
type FileWatcher struct {
	watcher       *fsnotify.Watcher
	extensions    map[string]bool
	onChange      func([]Event)
	debounceDelay time.Duration
	log           *common.SafeLogger

	mu            sync.Mutex
	watchPaths    []string
	matchers      []*gitignore.Matcher
	pendingEvents map[string]Event
	debounceTimer *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFileWatcher creates a watcher calling onChange with each flushed batch
func NewFileWatcher(extensions []string, onChange func([]Event), logger *common.SafeLogger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = common.LSPLogger
	}

	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[ext] = true
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FileWatcher{
		watcher:       w,
		extensions:    exts,
		onChange:      onChange,
		debounceDelay: constants.FileWatchDebounceDelay,
		log:           logger.Named("watcher"),
		pendingEvents: make(map[string]Event),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}, nil
}

// AddPath watches a directory and its subdirectories
func (fw *FileWatcher) AddPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := fw.watcher.Add(absPath); err != nil {
		return err
	}

	fw.mu.Lock()
	fw.watchPaths = append(fw.watchPaths, absPath)
	fw.matchers = append(fw.matchers, gitignore.NewMatcher(absPath))
	fw.mu.Unlock()
	fw.log.Debug("Added watch path: %s", absPath)

	if err := fw.addSubdirectories(absPath); err != nil {
		fw.log.Warn("Failed to add subdirectories for %s: %v", absPath, err)
	}
	return nil
}

// WatchPaths returns the roots passed to AddPath
func (fw *FileWatcher) WatchPaths() []string {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return append([]string(nil), fw.watchPaths...)
}

func skipDir(name string) bool {
	return constants.SkipDirectories[name] || (strings.HasPrefix(name, ".") && len(name) > 1)
}

// matcherFor returns the .gitignore matcher of the watched root containing path
func (fw *FileWatcher) matcherFor(path string) *gitignore.Matcher {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for _, m := range fw.matchers {
		if strings.HasPrefix(path, m.Root()+string(filepath.Separator)) {
			return m
		}
	}
	return nil
}

// ignored reports paths excluded by name or by a .gitignore under a watched root
func (fw *FileWatcher) ignored(path string, isDir bool) bool {
	if isDir && skipDir(filepath.Base(path)) {
		return true
	}
	if m := fw.matcherFor(path); m != nil {
		return m.Ignored(path, isDir)
	}
	return false
}

func (fw *FileWatcher) addSubdirectories(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() || path == root {
			return nil
		}
		if fw.ignored(path, true) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			fw.log.Warn("Failed to watch directory %s: %v", path, err)
		}
		return nil
	})
}

// SetDebounceDelay sets how long the watcher waits for a burst to end
func (fw *FileWatcher) SetDebounceDelay(delay time.Duration) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.debounceDelay = delay
}

// Start begins processing events
func (fw *FileWatcher) Start() {
	go fw.watchLoop()
}

func (fw *FileWatcher) watchLoop() {
	defer close(fw.done)
	for {
		select {
		case <-fw.ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fw.shouldProcess(event.Name) {
				fw.handleEvent(event)
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error("Watch error: %v", err)
		}
	}
}

// shouldProcess filters by extension and .gitignore rules; new directories are
// watched as they appear
func (fw *FileWatcher) shouldProcess(path string) bool {
	if filepath.Base(path) == ".gitignore" {
		if m := fw.matcherFor(path); m != nil {
			m.Forget(filepath.Dir(path))
		}
		return false
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if !fw.ignored(path, true) {
			if err := fw.watcher.Add(path); err != nil {
				fw.log.Warn("Failed to watch new directory %s: %v", path, err)
			} else if err := fw.addSubdirectories(path); err != nil {
				fw.log.Warn("Failed to add new directory %s: %v", path, err)
			}
		}
		return false
	}
	return fw.extensions[filepath.Ext(path)] && !fw.ignored(path, false)
}

func opOf(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Write):
		return OpWrite, true
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Remove):
		return OpRemove, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	}
	return "", false
}

// handleEvent records the latest operation per path and restarts the debounce timer
func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	op, ok := opOf(event.Op)
	if !ok {
		return
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.pendingEvents[event.Name] = Event{Path: event.Name, Op: op, Timestamp: time.Now()}
	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}
	fw.debounceTimer = time.AfterFunc(fw.debounceDelay, fw.flushEvents)
}

// flushEvents hands pending events, sorted by path, to the callback
func (fw *FileWatcher) flushEvents() {
	fw.mu.Lock()
	if len(fw.pendingEvents) == 0 {
		fw.mu.Unlock()
		return
	}
	events := make([]Event, 0, len(fw.pendingEvents))
	for _, event := range fw.pendingEvents {
		events = append(events, event)
	}
	fw.pendingEvents = make(map[string]Event)
	fw.mu.Unlock()

	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
	if fw.onChange != nil {
		fw.log.Debug("Flushing %d file change events", len(events))
		fw.onChange(events)
	}
}

// Stop flushes pending events and stops watching
func (fw *FileWatcher) Stop() error {
	fw.cancel()
	fw.mu.Lock()
	if fw.debounceTimer != nil {
		fw.debounceTimer.Stop()
	}
	fw.mu.Unlock()
	fw.flushEvents()

	err := fw.watcher.Close()
	<-fw.done
	return err
}
