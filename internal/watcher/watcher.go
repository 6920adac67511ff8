// Package watcher reports uploaded documents appearing, changing or
// disappearing in a directory.
package watcher

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"docqa/internal/logger"
)

// Operation is the kind of change observed for a file.
type Operation int

const (
	Created Operation = iota
	Modified
	Removed
)

func (o Operation) String() string {
	switch o {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is a settled change to one file.
type Event struct {
	Path      string
	Operation Operation
}

// Watcher wraps fsnotify, filters by extension and coalesces bursts of
// events for the same path into one.
type Watcher struct {
	watcher    *fsnotify.Watcher
	extensions []string
	debounce   time.Duration
	log        *logger.Logger
}

// New creates a watcher. Events for a path are held until it has been quiet
// for debounce; zero emits immediately.
func New(extensions []string, debounce time.Duration, log *logger.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if len(extensions) == 0 {
		extensions = []string{".pdf", ".txt", ".md"}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Watcher{watcher: w, extensions: extensions, debounce: debounce, log: log}, nil
}

// Watch starts monitoring dir. The channel closes when ctx is done or the
// watcher is stopped.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan Event, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}
	events := make(chan Event, 100)
	go w.loop(ctx, events)
	return events, nil
}

func (w *Watcher) loop(ctx context.Context, events chan<- Event) {
	defer close(events)
	pending := map[string]Operation{}
	var flush <-chan time.Time

	emit := func() bool {
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			select {
			case events <- Event{Path: p, Operation: pending[p]}:
			case <-ctx.Done():
				return false
			}
			delete(pending, p)
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isWatchedExtension(ev.Name) {
				continue
			}
			op, ok := operation(ev.Op)
			if !ok {
				continue
			}
			pending[ev.Name] = merge(pending, ev.Name, op)
			if w.debounce <= 0 {
				if !emit() {
					return
				}
				continue
			}
			flush = time.After(w.debounce)
		case <-flush:
			flush = nil
			if !emit() {
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

// merge keeps a pending create as a create when writes follow it.
func merge(pending map[string]Operation, path string, op Operation) Operation {
	prev, ok := pending[path]
	if ok && prev == Created && op == Modified {
		return Created
	}
	return op
}

func operation(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return Created, true
	case op.Has(fsnotify.Write):
		return Modified, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return Removed, true
	default:
		return 0, false
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) isWatchedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
