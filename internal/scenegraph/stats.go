// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package scenegraph

import (
	"fmt"

	"github.com/desargues/desargues/internal/segment"
)

// Stats is a point-in-time summary of a graph, for diagnostics and status
// displays.
type Stats struct {
	Total     int
	Pending   int
	Rendering int
	Cached    int
	Dirty     int
	Error     int

	// MaxDepth is the length of the longest dependency chain in the graph:
	// zero for an empty graph, one for a graph of independent segments.
	MaxDepth int
}

// Stats summarizes the graph's current segment states and shape.
func (g *Graph) Stats() Stats {
	ret := Stats{Total: len(g.segments)}
	for _, s := range g.segments {
		switch s.State() {
		case segment.StatePending:
			ret.Pending++
		case segment.StateRendering:
			ret.Rendering++
		case segment.StateCached:
			ret.Cached++
		case segment.StateDirty:
			ret.Dirty++
		case segment.StateError:
			ret.Error++
		}
	}

	// Depth of each segment is 1 + max depth of its dependencies. Walking
	// in topological order guarantees dependencies are computed first.
	depth := make(map[segment.ID]int, len(g.segments))
	for _, id := range g.topo {
		d := 1
		for _, dep := range g.segments[id].Deps() {
			if depth[dep] >= d {
				d = depth[dep] + 1
			}
		}
		depth[id] = d
		if d > ret.MaxDepth {
			ret.MaxDepth = d
		}
	}
	return ret
}

func (s Stats) String() string {
	return fmt.Sprintf("%d segments (%d cached, %d dirty, %d pending, %d rendering, %d failed), max depth %d",
		s.Total, s.Cached, s.Dirty, s.Pending, s.Rendering, s.Error, s.MaxDepth)
}
