// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package schedule

import (
	"context"
	"log"
	"runtime"
	"sync"

	"slices"

	"golang.org/x/sync/semaphore"

	"github.com/desargues/desargues/internal/collections"
	"github.com/desargues/desargues/internal/lifecycle"
	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/segment"
)

// RenderFunc executes one segment through the renderer driver.
//
// The boolean reports whether the segment ended up cached; false means the
// render failed and the failure was recorded on the segment. The error
// return is reserved for engine faults (broken state transitions, an
// unwritable artifact directory), which abort the rest of the run.
type RenderFunc func(ctx context.Context, seg segment.Segment) (cached bool, err error)

// Runner executes a plan against a bounded worker pool.
type Runner struct {
	render  RenderFunc
	workers int
}

// NewRunner returns a runner using the given render function and worker
// count. A non-positive worker count defaults to the number of hardware
// threads.
func NewRunner(render RenderFunc, workers int) *Runner {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Runner{render: render, workers: workers}
}

// Report summarizes a run.
type Report struct {
	// Rendered lists segments that reached the cached state.
	Rendered []segment.ID

	// Errored lists segments whose render failed.
	Errored []segment.ID

	// Skipped lists segments that were never attempted: transitive
	// dependents of errored segments, plus whatever remained when the run
	// was cancelled. They are all still awaiting a render.
	Skipped []segment.ID

	// Cancelled is true if the run stopped early because the caller's
	// cancellation fired. Cancellation is an outcome, not an error.
	Cancelled bool
}

// Run renders every segment the graph snapshot says needs rendering.
//
// With parallel set, segments execute wave by wave: all of a wave's members
// settle (cached or errored) before the next wave starts, and within a wave
// at most the configured number of workers render at once. Without it,
// segments execute one at a time in topological order.
//
// Cancelling ctx stops the runner from issuing new segments; segments
// already in flight finish normally, which is why the render calls
// themselves get a context detached from the caller's cancellation (a
// per-segment timeout still applies inside the driver).
//
// A render failure doesn't stop the run: siblings continue, and only the
// failed segment's transitive dependents are skipped. Engine faults abort
// the run after in-flight segments settle.
func (r *Runner) Run(ctx context.Context, g *scenegraph.Graph, parallel bool) (*Report, error) {
	return r.RunTargets(ctx, g, parallel, nil)
}

// RunTargets is [Runner.Run] restricted to a subset of the dirty segments.
// Segments outside the target set are neither rendered nor reported; the
// caller is responsible for targeting a dependency-closed set (a target
// whose dirty dependency is out of scope is rendered without that
// dependency being rendered first).
func (r *Runner) RunTargets(ctx context.Context, g *scenegraph.Graph, parallel bool, only collections.Set[segment.ID]) (*Report, error) {
	var waves [][]segment.Segment
	var err error
	if parallel {
		waves, err = PlanWaves(g)
	} else {
		var seq []segment.Segment
		seq, err = PlanSequential(g)
		for _, s := range seq {
			waves = append(waves, []segment.Segment{s})
		}
	}
	if err != nil {
		return nil, err
	}

	var (
		mu        sync.Mutex
		report    Report
		engineErr error
		skip      = collections.NewSet[segment.ID]()
	)
	tracker := lifecycle.NewCompletionTracker[segment.ID]()
	sem := semaphore.NewWeighted(int64(r.workers))
	renderCtx := context.WithoutCancel(ctx)

	for waveIdx, wave := range waves {
		wave = filterTargets(wave, only)
		mu.Lock()
		fault := engineErr
		mu.Unlock()
		if fault != nil {
			report.Skipped = append(report.Skipped, idsOf(wave)...)
			continue
		}
		if ctx.Err() != nil {
			report.Cancelled = true
			report.Skipped = append(report.Skipped, idsOf(wave)...)
			continue
		}

		log.Printf("[DEBUG] schedule: starting wave %d with %d segments", waveIdx, len(wave))
		for _, seg := range wave {
			seg := seg
			id := seg.ID()

			mu.Lock()
			skipThis := skip.Has(id)
			fault = engineErr
			mu.Unlock()
			if skipThis || fault != nil || ctx.Err() != nil {
				if !skipThis {
					report.Cancelled = report.Cancelled || ctx.Err() != nil
				}
				mu.Lock()
				report.Skipped = append(report.Skipped, id)
				mu.Unlock()
				tracker.ReportCompletion(id)
				continue
			}

			// The semaphore bounds in-flight renders; acquisition uses a
			// background context because cancellation must not abandon the
			// bookkeeping for segments we already decided to issue.
			if err := sem.Acquire(context.Background(), 1); err != nil {
				tracker.ReportCompletion(id)
				continue
			}
			go func() {
				defer sem.Release(1)
				defer tracker.ReportCompletion(id)

				cached, err := r.render(renderCtx, seg)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					engineErr = err
				case cached:
					report.Rendered = append(report.Rendered, id)
				default:
					report.Errored = append(report.Errored, id)
					for dependent := range g.TransitiveDependents(id) {
						skip.Add(dependent)
					}
				}
			}()
		}

		// The wave barrier: nothing from the next wave starts while any
		// member of this one is still rendering.
		tracker.WaitFor(slices.Values(idsOf(wave)))
	}

	mu.Lock()
	defer mu.Unlock()
	if engineErr != nil {
		return nil, engineErr
	}
	if ctx.Err() != nil {
		report.Cancelled = true
	}
	ret := report
	return &ret, nil
}

func filterTargets(wave []segment.Segment, only collections.Set[segment.ID]) []segment.Segment {
	if only == nil {
		return wave
	}
	var ret []segment.Segment
	for _, s := range wave {
		if only.Has(s.ID()) {
			ret = append(ret, s)
		}
	}
	return ret
}

func idsOf(segs []segment.Segment) []segment.ID {
	ret := make([]segment.ID, len(segs))
	for i, s := range segs {
		ret[i] = s.ID()
	}
	return ret
}
