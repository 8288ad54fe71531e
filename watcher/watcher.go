/*
Copyright (C) 2025  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package watcher turns raw filesystem notifications under a content
// root into a coalesced stream of {path, kind} events, one per path per
// debounce window.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Kind classifies a coalesced event.
type Kind int

const (
	Created Kind = iota
	Modified
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	default:
		return "modified"
	}
}

// Event is one coalesced, filtered filesystem change.
type Event struct {
	Path string
	Kind Kind
}

// RecentlyWritten tracks paths the sync engine just wrote from a remote
// change, so the watcher's next debounce window does not bounce that
// write back out as a local edit. The sync engine inserts a path before
// writing and the watcher consumes (removes) it the first time it would
// otherwise emit an event for that path.
type RecentlyWritten struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func NewRecentlyWritten() *RecentlyWritten {
	return &RecentlyWritten{paths: map[string]struct{}{}}
}

func (r *RecentlyWritten) Mark(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[path] = struct{}{}
}

// Consume reports whether path was marked, removing the mark either way.
func (r *RecentlyWritten) Consume(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.paths[path]
	delete(r.paths, path)
	return ok
}

// Config controls debounce timing and what the watcher ignores.
type Config struct {
	Root            string
	DebounceMin     time.Duration
	DebounceMax     time.Duration
	MaxFileSize     int64
	ExcludePatterns []string
	RecentlyWritten *RecentlyWritten
}

func (c *Config) setDefaults() {
	if c.DebounceMin == 0 {
		c.DebounceMin = 200 * time.Millisecond
	}
	if c.DebounceMax == 0 {
		c.DebounceMax = 500 * time.Millisecond
	}
	if c.RecentlyWritten == nil {
		c.RecentlyWritten = NewRecentlyWritten()
	}
}

// Watcher is the single cooperative task described in §4.4: it owns one
// fsnotify.Watcher, a per-path debounce timer set, and emits Events on
// Events() until Run's context is cancelled.
type Watcher struct {
	cfg    Config
	fsw    *fsnotify.Watcher
	events chan Event

	mu      sync.Mutex
	pending map[string]*pendingEvent
}

type pendingEvent struct {
	kind  Kind
	timer *time.Timer
}

func New(cfg Config) (*Watcher, error) {
	cfg.setDefaults()
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		cfg:     cfg,
		fsw:     fsw,
		events:  make(chan Event, 256),
		pending: map[string]*pendingEvent{},
	}, nil
}

// Events is the coalesced event stream. Closed once Run returns.
func (w *Watcher) Events() <-chan Event { return w.events }

// Run walks the content root once, emitting a Modified event per file
// found (the initial scan), then watches every directory under the
// root until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer w.fsw.Close()

	if err := w.addTree(w.cfg.Root); err != nil {
		return err
	}
	if err := w.initialScan(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleRaw(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			_ = err // surfaced to caller via logging at a higher layer
		}
	}
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) initialScan(ctx context.Context) error {
	return filepath.WalkDir(w.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if w.ignored(path) {
			return nil
		}
		select {
		case w.events <- Event{Path: path, Kind: Modified}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
}

func (w *Watcher) handleRaw(ctx context.Context, ev fsnotify.Event) {
	if w.ignored(ev.Name) {
		return
	}
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.addTree(ev.Name)
		}
	}
	if w.cfg.RecentlyWritten.Consume(ev.Name) {
		return
	}

	kind := Modified
	switch {
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		kind = Deleted
	case ev.Op&fsnotify.Create != 0:
		kind = Created
	}
	w.schedule(ctx, ev.Name, kind)
}

// schedule coalesces repeated events for the same path into a single
// emission after the debounce window elapses with no further activity.
func (w *Watcher) schedule(ctx context.Context, path string, kind Kind) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok {
		p.kind = kind
		p.timer.Reset(w.cfg.DebounceMin)
		return
	}

	p := &pendingEvent{kind: kind}
	p.timer = time.AfterFunc(w.cfg.DebounceMin, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.events <- Event{Path: path, Kind: p.kind}:
		case <-ctx.Done():
		default:
			// backpressure: drop the duplicate, the next debounce
			// window (triggered by further fs activity) re-enqueues it
		}
	})
	w.pending[path] = p
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.cfg.Root, path)
	if err != nil {
		return true
	}
	base := filepath.Base(rel)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, ".swp") {
		return true
	}
	for _, pat := range w.cfg.ExcludePatterns {
		if ok, _ := filepath.Match(pat, rel); ok {
			return true
		}
	}
	if w.cfg.MaxFileSize > 0 {
		if info, err := os.Stat(path); err == nil && info.Size() > w.cfg.MaxFileSize {
			return true
		}
	}
	return false
}
