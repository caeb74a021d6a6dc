// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package session is the engine's public surface: it owns the mutable
// "current graph" cell, wires the driver, scheduler, combiner, and watcher
// together, and exposes the operations a REPL or CLI calls.
//
// Everything below the session works on immutable graph values; the session
// serializes swaps of the cell so watcher-driven updates and caller edits
// interleave cleanly.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/desargues/desargues/internal/backend"
	"github.com/desargues/desargues/internal/collections"
	"github.com/desargues/desargues/internal/combine"
	"github.com/desargues/desargues/internal/events"
	"github.com/desargues/desargues/internal/graphrepo"
	"github.com/desargues/desargues/internal/quality"
	"github.com/desargues/desargues/internal/render"
	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/schedule"
	"github.com/desargues/desargues/internal/segment"
	"github.com/desargues/desargues/internal/watch"
)

// Config wires a session.
type Config struct {
	// OutputRoot is the directory holding partial/ and output/.
	OutputRoot string

	// ArtifactExt is the artifact container extension, without the dot.
	// Defaults to "mp4".
	ArtifactExt string

	// BackendTag selects a backend from the registry. Ignored when Backend
	// is set directly.
	BackendTag string

	// Backend injects a backend instance, bypassing the registry. Mainly
	// for tests.
	Backend backend.Backend

	// FS is the filesystem for artifacts. Defaults to the OS filesystem.
	FS afero.Fs

	// Events receives the engine's event stream. A fresh registry is
	// created when nil.
	Events *events.Registry

	// Quality resolves quality presets. A registry with the standard
	// presets is created when nil.
	Quality *quality.Registry

	// DefaultQuality names the preset used when options don't specify one.
	// Defaults to "medium".
	DefaultQuality string

	// WorkerCount is the default render pool size; zero means one worker
	// per hardware thread.
	WorkerCount int
}

// Options tunes one render operation, mirroring the recognized option keys
// of the session API.
type Options struct {
	// Quality is a preset name (string) or a literal quality.Setting. Nil
	// uses the session default.
	Quality any

	// WorkerCount overrides the session's render pool size when positive.
	WorkerCount int

	// Sequential switches scheduling from dependency waves to
	// one-at-a-time topological order.
	Sequential bool

	// Timeout bounds each single segment render. Zero means no limit.
	Timeout time.Duration
}

// Session is one engine instance. A session owns its output directory
// exclusively; pointing two sessions at the same directory is undefined.
type Session struct {
	config  Config
	store   *render.ArtifactStore
	events  *events.Registry
	quality *quality.Registry

	mu    sync.Mutex
	graph *scenegraph.Graph

	initOnce sync.Once
	initErr  error
	backend  backend.Backend
	driver   *render.Driver
	combiner *combine.Combiner

	watchMu sync.Mutex
	watcher *watch.Watcher
}

// New returns a session over the given configuration. Init is deferred
// until the first operation that needs a backend.
func New(config Config) *Session {
	if config.FS == nil {
		config.FS = afero.NewOsFs()
	}
	if config.ArtifactExt == "" {
		config.ArtifactExt = "mp4"
	}
	if config.OutputRoot == "" {
		config.OutputRoot = "media"
	}
	if config.Events == nil {
		config.Events = events.NewRegistry()
	}
	if config.Quality == nil {
		config.Quality = quality.NewRegistry()
	}
	if config.DefaultQuality == "" {
		config.DefaultQuality = "medium"
	}
	return &Session{
		config:  config,
		store:   render.NewArtifactStore(config.FS, config.OutputRoot, config.ArtifactExt),
		events:  config.Events,
		quality: config.Quality,
		graph:   scenegraph.Empty(nil),
	}
}

// Init resolves the backend and prepares the artifact directories. It is
// idempotent; every rendering operation calls it implicitly.
func (s *Session) Init() error {
	s.initOnce.Do(func() {
		b := s.config.Backend
		if b == nil {
			var err error
			b, err = backend.Get(s.config.BackendTag)
			if err != nil {
				s.initErr = err
				return
			}
		} else if err := b.Init(); err != nil {
			s.initErr = err
			return
		}
		if err := s.store.EnsureDirs(); err != nil {
			s.initErr = err
			return
		}
		s.backend = b
		s.driver = render.NewDriver(b, s.store, s.events)
		s.combiner = combine.New(b, s.store, s.events)
		log.Printf("[INFO] session: initialized with backend %q, output root %s", b.Name(), s.config.OutputRoot)
	})
	return s.initErr
}

// Events returns the session's event registry, for observer registration.
func (s *Session) Events() *events.Registry { return s.events }

// Quality returns the session's quality preset registry.
func (s *Session) Quality() *quality.Registry { return s.quality }

// Store returns the session's artifact store.
func (s *Session) Store() *render.ArtifactStore { return s.store }

// MakeSegment builds a segment value. The construct must carry a content
// tag; sourceUnit may be empty for segments that no source edit ever
// invalidates.
func (s *Session) MakeSegment(id segment.ID, construct segment.Construct, deps []segment.ID, metadata map[string]string, sourceUnit string) (segment.Segment, error) {
	seg, err := segment.New(id, construct, deps, metadata)
	if err != nil {
		return segment.Segment{}, err
	}
	if sourceUnit != "" {
		seg = seg.WithSourceUnit(sourceUnit)
	}
	return seg, nil
}

// MakeGraph assembles the given segments into a graph, accepting them in
// any dependency order.
func (s *Session) MakeGraph(segs []segment.Segment, metadata map[string]string) (*scenegraph.Graph, error) {
	return scenegraph.Empty(metadata).AddAll(segs)
}

// UseGraph installs the given graph as the session's current graph.
func (s *Session) UseGraph(g *scenegraph.Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = g
}

// Current returns the current graph value. The value is immutable; holding
// onto it is always safe, it just goes stale.
func (s *Session) Current() *scenegraph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph
}

// UpdateSegment applies f to one segment of the current graph and installs
// the result, atomically with respect to other cell updates. It implements
// [render.GraphCell] for the driver.
func (s *Session) UpdateSegment(id segment.ID, f func(segment.Segment) (segment.Segment, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated, err := s.graph.Update(id, f)
	if err != nil {
		return err
	}
	s.graph = updated
	return nil
}

// MarkDirty invalidates a segment and, transitively, everything built on
// top of it, emitting a SegmentMarkedDirty event per newly-dirty segment.
func (s *Session) MarkDirty(id segment.ID) error {
	s.mu.Lock()
	before := s.graph
	updated, err := before.MarkDirty(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.graph = updated
	s.mu.Unlock()

	for _, seg := range updated.AllSegments() {
		old, _ := before.Get(seg.ID())
		if seg.State() == segment.StateDirty && old.State() != segment.StateDirty {
			s.events.Emit(events.SegmentMarkedDirty{ID: seg.ID()})
		}
	}
	return nil
}

// MarkAllDirty invalidates every segment.
func (s *Session) MarkAllDirty() {
	s.mu.Lock()
	s.graph = s.graph.MarkAllDirty()
	s.mu.Unlock()
}

// RenderDirty renders everything that needs rendering and returns the run
// report.
func (s *Session) RenderDirty(ctx context.Context, opts Options) (*schedule.Report, error) {
	return s.renderTargets(ctx, opts, nil)
}

// RenderAll marks every segment dirty and renders the lot.
func (s *Session) RenderAll(ctx context.Context, opts Options) (*schedule.Report, error) {
	s.MarkAllDirty()
	return s.RenderDirty(ctx, opts)
}

// Render renders one segment, first rendering any of its ancestors that
// need it. Other dirty segments are left untouched.
func (s *Session) Render(ctx context.Context, id segment.ID, opts Options) (*schedule.Report, error) {
	g := s.Current()
	seg, ok := g.Get(id)
	if !ok {
		return nil, &scenegraph.UnknownSegmentError{ID: id}
	}

	targets := collections.NewSet(id)
	for dep := range g.TransitiveDependencies(id) {
		if depSeg, ok := g.Get(dep); ok && depSeg.NeedsRender() {
			targets.Add(dep)
		}
	}
	if !seg.NeedsRender() && len(targets) == 1 {
		// Already cached and nothing upstream to do.
		return &schedule.Report{}, nil
	}
	return s.renderTargets(ctx, opts, targets)
}

func (s *Session) renderTargets(ctx context.Context, opts Options, targets collections.Set[segment.ID]) (*schedule.Report, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	driverOpts, err := s.driverOptions(opts)
	if err != nil {
		return nil, err
	}

	workers := s.config.WorkerCount
	if opts.WorkerCount > 0 {
		workers = opts.WorkerCount
	}
	runner := schedule.NewRunner(func(renderCtx context.Context, seg segment.Segment) (bool, error) {
		return s.driver.RenderSegment(renderCtx, s, seg, driverOpts)
	}, workers)

	return runner.RunTargets(ctx, s.Current(), !opts.Sequential, targets)
}

// Preview renders a single segment at the low preset into a throwaway
// location, without touching its cached state.
func (s *Session) Preview(ctx context.Context, id segment.ID, opts Options) (string, error) {
	if err := s.Init(); err != nil {
		return "", err
	}
	seg, ok := s.Current().Get(id)
	if !ok {
		return "", &scenegraph.UnknownSegmentError{ID: id}
	}
	if opts.Quality == nil {
		opts.Quality = "low"
	}
	driverOpts, err := s.driverOptions(opts)
	if err != nil {
		return "", err
	}
	return s.driver.Preview(ctx, seg, driverOpts)
}

// Combine concatenates the cached artifacts into outputPath. A nil order
// means every segment in topological order.
func (s *Session) Combine(ctx context.Context, outputPath string, order []segment.ID) (string, error) {
	if err := s.Init(); err != nil {
		return "", err
	}
	return s.combiner.Combine(ctx, s.Current(), outputPath, order)
}

// Export renders everything that needs it and then combines, the one-call
// version of an edit cycle's tail. Combining is skipped when the render
// report shows failures or a cancellation, because the combiner would
// refuse anyway.
func (s *Session) Export(ctx context.Context, outputPath string, opts Options) (string, *schedule.Report, error) {
	report, err := s.RenderDirty(ctx, opts)
	if err != nil {
		return "", nil, err
	}
	if report.Cancelled || len(report.Errored) > 0 || len(report.Skipped) > 0 {
		return "", report, fmt.Errorf("not combining: %d segments failed, %d skipped, cancelled=%t",
			len(report.Errored), len(report.Skipped), report.Cancelled)
	}
	path, err := s.Combine(ctx, outputPath, nil)
	if err != nil {
		return "", report, err
	}
	return path, report, nil
}

// SaveGraph snapshots the current graph into the given repository.
func (s *Session) SaveGraph(repo graphrepo.Repository, id string) error {
	return repo.Save(id, s.Current())
}

// LoadGraph restores a snapshot as the current graph, re-binding construct
// callables by segment id.
func (s *Session) LoadGraph(repo graphrepo.Repository, id string, constructs map[segment.ID]segment.Construct) error {
	g, err := repo.Load(id, constructs)
	if err != nil {
		return err
	}
	if g == nil {
		return fmt.Errorf("no graph snapshot named %q", id)
	}
	s.UseGraph(g)
	return nil
}

// ReconcileArtifacts adopts valid artifacts already on disk: any segment
// awaiting a render whose current content hash has a nonempty artifact
// under partial/ becomes cached without re-rendering. This is how a fresh
// process resumes an earlier session's cache, since the hash-embedding
// filename is the manifest.
func (s *Session) ReconcileArtifacts() error {
	if err := s.Init(); err != nil {
		return err
	}
	for _, seg := range s.Current().AllSegments() {
		if !seg.NeedsRender() {
			continue
		}
		id, hash := seg.ID(), seg.ContentHash()
		if !s.store.IsCached(id, hash) {
			continue
		}
		if err := s.UpdateSegment(id, func(cur segment.Segment) (segment.Segment, error) {
			if !cur.NeedsRender() || cur.ContentHash() != hash {
				return cur, nil
			}
			return cur.AdoptArtifact(s.store.PartialPath(id, hash))
		}); err != nil {
			return err
		}
		log.Printf("[DEBUG] session: adopted existing artifact for %q at %s", id, hash)
	}
	return nil
}

// Stats summarizes the current graph.
func (s *Session) Stats() scenegraph.Stats {
	return s.Current().Stats()
}

func (s *Session) driverOptions(opts Options) (render.Options, error) {
	q := opts.Quality
	if q == nil {
		q = s.config.DefaultQuality
	}
	setting, err := s.quality.Resolve(q)
	if err != nil {
		return render.Options{}, err
	}
	return render.Options{Quality: setting, Timeout: opts.Timeout}, nil
}
