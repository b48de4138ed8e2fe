// Package watcher turns filesystem notifications into debounced change
// batches, one stream per watch group.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mailwright/mailwright/internal/fileset"
	"github.com/mailwright/mailwright/internal/logging"
)

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type EventType
	// Path is slash-separated and relative to the watcher's base directory.
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// ChangeHandler handles one debounced batch of a group's changes.
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

// group is a named set of globs bound to a handler through its own
// debouncer.
type group struct {
	name      string
	files     fileset.Set
	handler   ChangeHandler
	debouncer *Debouncer
}

// FileWatcher watches directory trees and dispatches changes to groups
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	base     string
	delay    time.Duration
	groups   []*group
	filters  []FileFilter
	logger   logging.Logger
	mutex    sync.RWMutex
	stopOnce sync.Once
}

// Options configure a FileWatcher.
type Options struct {
	// Debounce is how long a group waits for quiet before firing.
	Debounce time.Duration
	// Base is the directory event paths are made relative to before glob
	// matching. Defaults to the working directory.
	Base   string
	Logger logging.Logger
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(opts Options) (*FileWatcher, error) {
	base := opts.Base
	if base == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting current directory: %w", err)
		}
		base = cwd
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolving base: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &FileWatcher{
		watcher: watcher,
		base:    base,
		delay:   opts.Debounce,
		filters: []FileFilter{NoGitFilter, NoTempFilter},
		logger:  logger.WithComponent("watcher"),
	}, nil
}

// AddGroup registers a watch group. Paths matching exclude never reach the
// group. Call before Start.
func (fw *FileWatcher) AddGroup(name string, patterns []string, handler ChangeHandler, exclude ...string) error {
	files := fileset.New("", patterns, exclude...)
	if err := files.Validate(); err != nil {
		return fmt.Errorf("watch group %s: %w", name, err)
	}

	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.groups = append(fw.groups, &group{
		name:      name,
		files:     files,
		handler:   handler,
		debouncer: NewDebouncer(fw.delay),
	})
	return nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddRecursive adds a directory and all subdirectories to watch
func (fw *FileWatcher) AddRecursive(root string) error {
	cleanRoot, err := fw.resolve(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}

	return filepath.WalkDir(cleanRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); path != cleanRoot && (name == ".git" || name == "node_modules") {
			return filepath.SkipDir
		}
		return fw.watcher.Add(path)
	})
}

// resolve makes root absolute against the base and checks it is a directory
func (fw *FileWatcher) resolve(root string) (string, error) {
	path := filepath.Clean(root)
	if !filepath.IsAbs(path) {
		path = filepath.Join(fw.base, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", root)
	}
	return path, nil
}

// Start starts the file watcher. It returns immediately; watching stops
// when ctx is done or Stop is called.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.mutex.RLock()
	groups := fw.groups
	fw.mutex.RUnlock()

	if len(groups) == 0 {
		return fmt.Errorf("no watch groups registered")
	}

	for _, g := range groups {
		go g.debouncer.start(ctx)
		go fw.processEvents(ctx, g)
	}
	go fw.watchLoop(ctx)

	return nil
}

// Stop stops the file watcher and cleans up resources
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		fw.mutex.RLock()
		for _, g := range fw.groups {
			g.debouncer.stop()
		}
		fw.mutex.RUnlock()
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	info, statErr := os.Stat(event.Name)

	// New directories are not covered by the existing watches.
	if statErr == nil && info.IsDir() {
		if event.Op.Has(fsnotify.Create) {
			if err := fw.AddRecursive(event.Name); err != nil {
				fw.logger.Warn(ctx, err, "Failed to watch new directory", "path", event.Name)
			}
		}
		return
	}

	rel := fw.relative(event.Name)

	fw.mutex.RLock()
	filters := fw.filters
	groups := fw.groups
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(rel) {
			return
		}
	}

	changeEvent := ChangeEvent{Type: eventType(event.Op), Path: rel}
	if statErr == nil {
		changeEvent.ModTime = info.ModTime()
		changeEvent.Size = info.Size()
	}

	for _, g := range groups {
		if g.files.Match(rel) {
			fw.logger.Debug(ctx, "Change detected", "group", g.name, "path", rel, "type", changeEvent.Type.String())
			g.debouncer.Add(changeEvent)
		}
	}
}

func eventType(op fsnotify.Op) EventType {
	switch {
	case op.Has(fsnotify.Create):
		return EventTypeCreated
	case op.Has(fsnotify.Write):
		return EventTypeModified
	case op.Has(fsnotify.Remove):
		return EventTypeDeleted
	case op.Has(fsnotify.Rename):
		return EventTypeRenamed
	default:
		return EventTypeModified
	}
}

func (fw *FileWatcher) relative(name string) string {
	abs := name
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(fw.base, abs)
	}
	rel, err := filepath.Rel(fw.base, abs)
	if err != nil {
		return filepath.ToSlash(name)
	}
	return filepath.ToSlash(rel)
}

func (fw *FileWatcher) processEvents(ctx context.Context, g *group) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-g.debouncer.output:
			if err := g.handler(ctx, events); err != nil {
				fw.logger.Error(ctx, err, "Watch handler failed", "group", g.name)
			}
		}
	}
}

// NoGitFilter drops anything inside a .git directory.
func NoGitFilter(path string) bool {
	return !strings.HasPrefix(path, ".git/") && !strings.Contains(path, "/.git/")
}

// NoTempFilter drops editor swap and backup files.
func NoTempFilter(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasSuffix(base, ".tmp"),
		strings.HasPrefix(base, ".#"),
		base == "4913":
		return false
	}
	return true
}

// sortEvents orders a batch by path.
func sortEvents(events []ChangeEvent) {
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })
}
