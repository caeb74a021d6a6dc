// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package scenegraph

import (
	"github.com/desargues/desargues/internal/collections"
	"github.com/desargues/desargues/internal/segment"
)

// recomputeTopo rebuilds the cached topological order using Kahn's
// algorithm, breaking ties by insertion order so that repeated runs over the
// same graph schedule work identically.
//
// If the dependency edges contain a cycle the graph's cached order is left
// untouched and a [CycleError] naming the offending segments is returned.
func (g *Graph) recomputeTopo() error {
	indegree := make(map[segment.ID]int, len(g.segments))
	for id, s := range g.segments {
		indegree[id] = len(s.Deps())
	}

	ready := make([]segment.ID, 0, len(g.segments))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]segment.ID, 0, len(g.segments))
	for len(ready) > 0 {
		// Pick the ready segment that was inserted earliest. Scene graphs
		// are small enough that a linear scan beats maintaining a heap.
		best := 0
		for i := 1; i < len(ready); i++ {
			if g.insertion[ready[i]] < g.insertion[ready[best]] {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, id)

		for dependent := range g.reverse[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(g.segments) {
		onCycle := collections.NewSet[segment.ID]()
		for id, deg := range indegree {
			if deg > 0 {
				onCycle.Add(id)
			}
		}
		return &CycleError{IDs: onCycle}
	}

	g.topo = order
	return nil
}
