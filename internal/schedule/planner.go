// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package schedule decides which segments to render and in what order: a
// sequential plan for one-at-a-time execution, and a wave plan partitioning
// the dirty set into groups that are safe to render concurrently.
package schedule

import (
	"fmt"
	"math"

	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/segment"
)

// UnsatisfiedDependencyError indicates a plan was requested for a graph in
// which some segment needing a render has a dependency that is neither
// cached nor itself scheduled. That can only happen through a logic error in
// the caller, not through any sequence of renders.
type UnsatisfiedDependencyError struct {
	ID segment.ID
}

func (e *UnsatisfiedDependencyError) Error() string {
	return fmt.Sprintf("segment %q is not cached but is required by a segment being scheduled", e.ID)
}

// PlanSequential returns the segments needing a render, in topological
// order.
func PlanSequential(g *scenegraph.Graph) ([]segment.Segment, error) {
	if err := checkSatisfied(g); err != nil {
		return nil, err
	}
	var ret []segment.Segment
	for _, id := range g.DirtyInOrder() {
		s, _ := g.Get(id)
		ret = append(ret, s)
	}
	return ret, nil
}

// PlanWaves partitions the segments needing a render into waves: wave zero
// holds those with no un-rendered dependencies, and each later wave holds
// those whose un-rendered dependencies all lie in earlier waves, with at
// least one in the wave immediately before. Segments within one wave are
// pairwise dependency-independent and may render concurrently.
func PlanWaves(g *scenegraph.Graph) ([][]segment.Segment, error) {
	if err := checkSatisfied(g); err != nil {
		return nil, err
	}

	waveOf := map[segment.ID]int{}
	var waves [][]segment.Segment
	for _, id := range g.DirtyInOrder() {
		s, _ := g.Get(id)
		wave := 0
		for _, dep := range s.Deps() {
			if depWave, scheduled := waveOf[dep]; scheduled && depWave+1 > wave {
				wave = depWave + 1
			}
		}
		waveOf[id] = wave
		if wave == len(waves) {
			waves = append(waves, nil)
		}
		waves[wave] = append(waves[wave], s)
	}
	return waves, nil
}

// checkSatisfied verifies that every dependency of every segment needing a
// render is either cached already or scheduled for rendering itself.
func checkSatisfied(g *scenegraph.Graph) error {
	for _, id := range g.DirtyInOrder() {
		s, _ := g.Get(id)
		for _, dep := range s.Deps() {
			depSeg, ok := g.Get(dep)
			if !ok {
				return &UnsatisfiedDependencyError{ID: dep}
			}
			if depSeg.State() != segment.StateCached && !depSeg.NeedsRender() {
				return &UnsatisfiedDependencyError{ID: dep}
			}
		}
	}
	return nil
}

// Estimate is an informational projection of how long a run will take.
type Estimate struct {
	// Sequential is the projected wall-clock seconds rendering one segment
	// at a time.
	Sequential float64

	// Parallel is the projected wall-clock seconds rendering wave by wave
	// with the given worker count.
	Parallel float64

	// Speedup is Sequential / Parallel, or zero when nothing needs
	// rendering.
	Speedup float64
}

// EstimateRun projects run time assuming every segment takes
// perSegmentSeconds: sequentially that's one slot per segment, and in
// parallel each wave costs ceil(len(wave)/workers) slots.
func EstimateRun(g *scenegraph.Graph, perSegmentSeconds float64, workers int) (Estimate, error) {
	if workers < 1 {
		workers = 1
	}
	waves, err := PlanWaves(g)
	if err != nil {
		return Estimate{}, err
	}

	var ret Estimate
	for _, wave := range waves {
		ret.Sequential += float64(len(wave)) * perSegmentSeconds
		ret.Parallel += math.Ceil(float64(len(wave))/float64(workers)) * perSegmentSeconds
	}
	if ret.Parallel > 0 {
		ret.Speedup = ret.Sequential / ret.Parallel
	}
	return ret, nil
}
