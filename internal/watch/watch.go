// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package watch observes source roots for edits and translates filesystem
// events into source-unit invalidations against the current scene graph.
//
// The watcher deliberately knows nothing about rendering: it computes which
// segments a change affects, emits a SourceChanged event, and hands the
// result to a caller-configured hook. The session layer decides what to do
// about it.
package watch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"slices"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/desargues/desargues/internal/collections"
	"github.com/desargues/desargues/internal/events"
	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/segment"
)

// DefaultDebounce is how long the watcher waits after the last filesystem
// event before processing a burst as one change.
const DefaultDebounce = 100 * time.Millisecond

// UnitMapper translates a changed file path into zero or more source-unit
// identifiers.
type UnitMapper func(path string) []string

// DefaultUnitMapper maps a file to a single unit: its base name without
// extension. "scenes/intro.py" changes unit "intro".
func DefaultUnitMapper(path string) []string {
	base := filepath.Base(path)
	unit := strings.TrimSuffix(base, filepath.Ext(base))
	if unit == "" {
		return nil
	}
	return []string{unit}
}

// OnChange is the caller's hook, invoked once per changed source unit with
// the affected segment ids. It runs on its own goroutine; a panic inside it
// is logged and discarded so the watcher keeps running.
type OnChange func(unit string, affected []segment.ID)

// Config configures a watcher.
type Config struct {
	// Roots are the directories to observe, recursively.
	Roots []string

	// Debounce overrides [DefaultDebounce] when positive.
	Debounce time.Duration

	// Mapper translates file paths to source units. Defaults to
	// [DefaultUnitMapper].
	Mapper UnitMapper

	// Snapshot returns the current graph, against which affected segments
	// are computed. Required.
	Snapshot func() *scenegraph.Graph

	// OnChange, if set, receives each change after the SourceChanged event
	// is emitted.
	OnChange OnChange

	// Events receives SourceChanged emissions. Required.
	Events *events.Registry
}

// Watcher is a running watch session.
type Watcher struct {
	id     string
	roots  []string
	config Config

	fsw     *fsnotify.Watcher
	done    chan struct{}
	stopped sync.Once
	running atomic.Bool

	changesDetected atomic.Int64
	lastChange      atomic.Int64 // unix nanos; zero until the first change
}

// Watchers started on identical root sets are shared: a second Start with
// the same roots returns the existing handle.
var active struct {
	sync.Mutex
	byRoots map[string]*Watcher
}

func init() {
	active.byRoots = map[string]*Watcher{}
}

func rootsKey(roots []string) string {
	normalized := make([]string, len(roots))
	for i, root := range roots {
		normalized[i] = filepath.Clean(root)
	}
	slices.Sort(normalized)
	return strings.Join(normalized, string(os.PathListSeparator))
}

// Start begins watching the configured roots and returns a handle. Starting
// twice on the same set of roots is a no-op returning the existing handle.
func Start(config Config) (*Watcher, error) {
	if len(config.Roots) == 0 {
		return nil, fmt.Errorf("watcher needs at least one root directory")
	}
	if config.Snapshot == nil || config.Events == nil {
		return nil, fmt.Errorf("watcher config needs a graph snapshot source and an event registry")
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if config.Mapper == nil {
		config.Mapper = DefaultUnitMapper
	}

	key := rootsKey(config.Roots)
	active.Lock()
	defer active.Unlock()
	if existing, ok := active.byRoots[key]; ok && existing.Running() {
		return existing, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}
	w := &Watcher{
		id:     uuid.NewString(),
		roots:  slices.Clone(config.Roots),
		config: config,
		fsw:    fsw,
		done:   make(chan struct{}),
	}
	for _, root := range config.Roots {
		if err := w.watchRecursively(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	w.running.Store(true)
	active.byRoots[key] = w
	go w.loop()
	log.Printf("[DEBUG] watch: started watcher %s over %v", w.id, config.Roots)
	return w, nil
}

// ID returns the watcher's unique handle id.
func (w *Watcher) ID() string { return w.id }

// Roots returns the watched root directories.
func (w *Watcher) Roots() []string { return slices.Clone(w.roots) }

// Running reports whether the watcher is still observing.
func (w *Watcher) Running() bool { return w.running.Load() }

// Stats returns how many change bursts the watcher has processed and when
// the most recent one arrived (zero time if none yet).
func (w *Watcher) Stats() (changes int64, last time.Time) {
	changes = w.changesDetected.Load()
	if nanos := w.lastChange.Load(); nanos != 0 {
		last = time.Unix(0, nanos)
	}
	return changes, last
}

// Stop shuts the watcher down. It is idempotent.
func (w *Watcher) Stop() {
	w.stopped.Do(func() {
		w.running.Store(false)
		close(w.done)
		w.fsw.Close()

		active.Lock()
		defer active.Unlock()
		key := rootsKey(w.roots)
		if active.byRoots[key] == w {
			delete(active.byRoots, key)
		}
		log.Printf("[DEBUG] watch: stopped watcher %s", w.id)
	})
}

func (w *Watcher) watchRecursively(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// loop is the watcher's event pump: it coalesces filesystem event bursts
// within the debounce window and processes each burst once quiet.
func (w *Watcher) loop() {
	var (
		pending  = collections.NewSet[string]()
		debounce *time.Timer
		fire     <-chan time.Time
	)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) {
				// New directories need to be picked up so that edits under
				// them are seen too.
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.watchRecursively(ev.Name); err != nil {
						log.Printf("[WARN] watch: cannot watch new directory %s: %s", ev.Name, err)
					}
					continue
				}
			}
			if ev.Op.Has(fsnotify.Chmod) {
				continue
			}
			pending.Add(ev.Name)
			if debounce == nil {
				debounce = time.NewTimer(w.config.Debounce)
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(w.config.Debounce)
			}
			fire = debounce.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[WARN] watch: filesystem watcher error: %s", err)

		case <-fire:
			burst := pending
			pending = collections.NewSet[string]()
			fire = nil
			debounce = nil
			w.processBurst(burst)

		case <-w.done:
			return
		}
	}
}

// processBurst maps a burst of changed paths to source units and fans the
// resulting invalidations out to the event stream and the caller's hook.
func (w *Watcher) processBurst(paths collections.Set[string]) {
	units := collections.NewSet[string]()
	for path := range paths {
		for _, unit := range w.config.Mapper(path) {
			units.Add(unit)
		}
	}
	if len(units) == 0 {
		return
	}

	w.changesDetected.Add(1)
	w.lastChange.Store(time.Now().UnixNano())

	g := w.config.Snapshot()
	for _, unit := range collections.SortedValues(units) {
		affected := affectedSegments(g, unit)
		log.Printf("[TRACE] watch: source unit %q changed, affecting %d segments", unit, len(affected))
		w.config.Events.Emit(events.SourceChanged{Unit: unit, Affected: affected})
		if w.config.OnChange != nil {
			go w.invokeHook(unit, affected)
		}
	}
}

// affectedSegments returns the segments defined by the given source unit
// plus everything transitively built on top of them, in a stable order.
func affectedSegments(g *scenegraph.Graph, unit string) []segment.ID {
	affected := collections.NewSet[segment.ID]()
	for _, s := range g.AllSegments() {
		if s.SourceUnit() != unit {
			continue
		}
		affected.Add(s.ID())
		for dependent := range g.TransitiveDependents(s.ID()) {
			affected.Add(dependent)
		}
	}
	return collections.SortedValues(affected)
}

// invokeHook runs the caller's hook, containing any panic so a bad hook
// cannot stop the watcher.
func (w *Watcher) invokeHook(unit string, affected []segment.ID) {
	defer func() {
		if problem := recover(); problem != nil {
			log.Printf("[ERROR] watch: on-change hook panicked for unit %q: %v", unit, problem)
		}
	}()
	w.config.OnChange(unit, affected)
}
