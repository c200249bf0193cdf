// Package filewatch publishes a directory's files into a dataspace.
//
// Every regular file in the watched directory is asserted as File(path).
// Each change is also sent as a FileEvent(op, path) message with op one
// of "create", "write" or "remove". The watcher holds a background task
// on the host until it is stopped, so a Ground keeps running while a
// directory is watched.
package filewatch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/dataspace/internal/dataspace"
	"github.com/roach88/dataspace/internal/ir"
)

// Record labels published by the watcher.
const (
	LabelFile      = "File"
	LabelFileEvent = "FileEvent"
)

// Change operations carried by FileEvent.
const (
	OpCreate = "create"
	OpWrite  = "write"
	OpRemove = "remove"
)

// DefaultDebounce is how long a file must be quiet before its change is
// published.
const DefaultDebounce = 100 * time.Millisecond

// ErrNoHost is returned when the facet's dataspace has no host to post
// changes through.
var ErrNoHost = errors.New("filewatch: dataspace has no host")

// File is the assertion for a file present in the watched directory.
func File(path string) ir.IRValue {
	return ir.Rec(LabelFile, ir.IRString(path))
}

// FileEvent is the message sent for one change.
func FileEvent(op, path string) ir.IRValue {
	return ir.Rec(LabelFileEvent, ir.IRString(op), ir.IRString(path))
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSuffix restricts the watcher to file names ending in suffix.
func WithSuffix(suffix string) Option {
	return func(w *Watcher) {
		w.suffix = suffix
	}
}

// WithDebounce sets the quiet period before a change is published.
// Non-positive values are ignored.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher mirrors one directory into the dataspace of a facet.
//
// Thread-safety: the fsnotify loop runs on its own goroutine and only
// reaches the dataspace through Host.Post. The files set is touched from
// dataspace turns only.
type Watcher struct {
	Dir string

	facet    *dataspace.Facet
	host     dataspace.Host
	suffix   string
	debounce time.Duration

	fw       *fsnotify.Watcher
	done     chan struct{}
	release  func()
	stopOnce sync.Once

	files map[string]bool
}

// Start begins watching dir on behalf of f, which must be starting or
// live. Existing files are asserted immediately. The watcher stops when f
// stops or its actor fails.
func Start(f *dataspace.Facet, dir string, opts ...Option) (*Watcher, error) {
	host := f.Dataspace().Host()
	if host == nil {
		return nil, ErrNoHost
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("filewatch: resolve %s: %w", dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("filewatch: %w", err)
	}
	if err := fw.Add(abs); err != nil {
		fw.Close()
		return nil, fmt.Errorf("filewatch: watch %s: %w", abs, err)
	}

	w := &Watcher{
		Dir:      abs,
		facet:    f,
		host:     host,
		debounce: DefaultDebounce,
		fw:       fw,
		done:     make(chan struct{}),
		files:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("filewatch: scan %s: %w", abs, err)
	}
	for _, e := range entries {
		path := filepath.Join(abs, e.Name())
		if e.Type().IsRegular() && w.matches(path) {
			w.files[path] = true
			f.AdhocAssert(File(path))
		}
	}

	w.release = f.BackgroundTask()
	// Destroy hooks run when f stops and also when its actor fails.
	holder := f.AddEndpoint(func() dataspace.EndpointSpec { return dataspace.EndpointSpec{} }, false)
	holder.OnDestroy(w.Stop)
	go w.loop()

	slog.Info("watching directory", "dir", abs, "files", len(w.files))
	return w, nil
}

// Spawn starts an actor that watches dir. A watch error fails the actor.
func Spawn(parent *dataspace.Facet, dir string, opts ...Option) {
	parent.Spawn("filewatch:"+dir, func(f *dataspace.Facet) {
		if _, err := Start(f, dir, opts...); err != nil {
			panic(err)
		}
	})
}

// Stop ends the watch and releases the background task. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.fw.Close()
		<-w.done
		w.release()
		slog.Info("stopped watching directory", "dir", w.Dir)
	})
}

func (w *Watcher) matches(path string) bool {
	return w.suffix == "" || strings.HasSuffix(filepath.Base(path), w.suffix)
}

func (w *Watcher) loop() {
	defer close(w.done)

	// Debounce: track last event time per file.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[event.Name] = time.Now()
			}

		case <-ticker.C:
			now := time.Now()
			for file, t := range pending {
				if now.Sub(t) >= w.debounce {
					w.post(file)
					delete(pending, file)
				}
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("watch error", "dir", w.Dir, "error", err)
		}
	}
}

// post hands a settled change to the dataspace. Whether the file exists
// is sampled here; the turn compares it with what was published.
func (w *Watcher) post(path string) {
	info, err := os.Stat(path)
	exists := err == nil && info.Mode().IsRegular()
	w.host.Post(func() {
		w.facet.Schedule(func() {
			w.apply(path, exists)
		})
	})
}

func (w *Watcher) apply(path string, exists bool) {
	known := w.files[path]
	var op string
	switch {
	case exists && !known:
		op = OpCreate
		w.files[path] = true
		w.facet.AdhocAssert(File(path))
	case exists:
		op = OpWrite
	case known:
		op = OpRemove
		delete(w.files, path)
		w.facet.AdhocRetract(File(path))
	default:
		// Created and removed within one debounce period.
		return
	}
	slog.Debug("file changed", "op", op, "path", path)
	w.facet.Send(FileEvent(op, path))
}
