// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package scenegraph models a scene as an immutable DAG of segments.
//
// A [Graph] value is never modified in place: every mutating operation
// returns a new graph that shares unchanged segment values with its
// predecessor. Callers that need a mutable "current graph" keep their own
// cell holding the latest value; the session layer provides one.
package scenegraph

import (
	"maps"

	"slices"

	"github.com/desargues/desargues/internal/collections"
	"github.com/desargues/desargues/internal/segment"
)

// Graph is an immutable DAG of segments.
//
// The relationships are modelled twice: each segment carries its own
// dependency list (forward edges), and the graph maintains a derived
// reverse-edge table so that invalidation can walk from a segment to its
// dependents without scanning. A cached topological order is maintained
// alongside, with ties broken by insertion order so that runs are
// reproducible.
type Graph struct {
	segments map[segment.ID]segment.Segment

	// reverse maps each id to the set of ids that depend on it. Derived
	// from the segments' dependency lists, kept consistent by every mutator.
	reverse map[segment.ID]collections.Set[segment.ID]

	// insertion records the order in which segments were added, which is
	// the tie-break for the topological order.
	insertion map[segment.ID]int
	nextSeq   int

	// topo is the cached topological linearization, dependencies first.
	topo []segment.ID

	// metadata holds graph-level attributes such as a title or a default
	// quality preset name.
	metadata map[string]string
}

// Empty returns a graph with no segments and the given graph-level metadata.
func Empty(metadata map[string]string) *Graph {
	return &Graph{
		segments:  map[segment.ID]segment.Segment{},
		reverse:   map[segment.ID]collections.Set[segment.ID]{},
		insertion: map[segment.ID]int{},
		metadata:  maps.Clone(metadata),
	}
}

// clone returns a copy of the graph whose containers can be modified without
// affecting the receiver. Segment values are shared, which is safe because
// they are immutable.
func (g *Graph) clone() *Graph {
	ret := &Graph{
		segments:  maps.Clone(g.segments),
		reverse:   make(map[segment.ID]collections.Set[segment.ID], len(g.reverse)),
		insertion: maps.Clone(g.insertion),
		nextSeq:   g.nextSeq,
		topo:      slices.Clone(g.topo),
		metadata:  g.metadata,
	}
	for id, deps := range g.reverse {
		ret.reverse[id] = deps.Copy()
	}
	return ret
}

// Metadata returns a copy of the graph-level metadata.
func (g *Graph) Metadata() map[string]string {
	return maps.Clone(g.metadata)
}

// Get returns the segment with the given id, if present.
func (g *Graph) Get(id segment.ID) (segment.Segment, bool) {
	s, ok := g.segments[id]
	return s, ok
}

// Count returns the number of segments in the graph.
func (g *Graph) Count() int {
	return len(g.segments)
}

// IDs returns every segment id, in topological order.
func (g *Graph) IDs() []segment.ID {
	return slices.Clone(g.topo)
}

// AllSegments returns every segment, in topological order.
func (g *Graph) AllSegments() []segment.Segment {
	ret := make([]segment.Segment, 0, len(g.topo))
	for _, id := range g.topo {
		ret = append(ret, g.segments[id])
	}
	return ret
}

// RenderOrder returns the cached topological order: every segment appears
// after all of its dependencies, with ties broken by insertion order.
func (g *Graph) RenderOrder() []segment.ID {
	return slices.Clone(g.topo)
}

// DirtyInOrder returns the ids of every segment that needs rendering
// (pending, dirty, or errored), in topological order.
func (g *Graph) DirtyInOrder() []segment.ID {
	var ret []segment.ID
	for _, id := range g.topo {
		if g.segments[id].NeedsRender() {
			ret = append(ret, id)
		}
	}
	return ret
}

// Dependencies returns the set of ids the given segment directly depends on.
func (g *Graph) Dependencies(id segment.ID) collections.Set[segment.ID] {
	s, ok := g.segments[id]
	if !ok {
		return nil
	}
	return collections.NewSet(s.Deps()...)
}

// Dependents returns the set of ids that directly depend on the given
// segment.
func (g *Graph) Dependents(id segment.ID) collections.Set[segment.ID] {
	deps, ok := g.reverse[id]
	if !ok {
		return collections.NewSet[segment.ID]()
	}
	return deps.Copy()
}

// TransitiveDependents returns every id reachable from the given segment by
// following reverse edges, not including the segment itself.
func (g *Graph) TransitiveDependents(id segment.ID) collections.Set[segment.ID] {
	ret := collections.NewSet[segment.ID]()
	g.walkDependents(id, ret)
	return ret
}

func (g *Graph) walkDependents(id segment.ID, into collections.Set[segment.ID]) {
	for dependent := range g.reverse[id] {
		if into.Has(dependent) {
			continue
		}
		into.Add(dependent)
		g.walkDependents(dependent, into)
	}
}

// TransitiveDependencies returns every id reachable from the given segment by
// following dependency edges, not including the segment itself.
func (g *Graph) TransitiveDependencies(id segment.ID) collections.Set[segment.ID] {
	ret := collections.NewSet[segment.ID]()
	g.walkDependencies(id, ret)
	return ret
}

func (g *Graph) walkDependencies(id segment.ID, into collections.Set[segment.ID]) {
	s, ok := g.segments[id]
	if !ok {
		return
	}
	for _, dep := range s.Deps() {
		if into.Has(dep) {
			continue
		}
		into.Add(dep)
		g.walkDependencies(dep, into)
	}
}

// NextBatch returns the segments that need rendering and whose dependencies
// are all either already cached or currently rendering. These are the
// segments a scheduler may start next: a rendering dependency will have
// resolved by the time a batch launched after it completes. Order within the
// result is unspecified.
func (g *Graph) NextBatch() []segment.Segment {
	var ret []segment.Segment
	for _, id := range g.topo {
		s := g.segments[id]
		if !s.NeedsRender() {
			continue
		}
		ready := true
		for _, dep := range s.Deps() {
			switch g.segments[dep].State() {
			case segment.StateCached, segment.StateRendering:
			default:
				ready = false
			}
		}
		if ready {
			ret = append(ret, s)
		}
	}
	return ret
}

// hashes returns the current content hash of every segment, which is the
// dependency-hash map handed to segment rehash operations.
func (g *Graph) hashes() map[segment.ID]segment.Hash {
	ret := make(map[segment.ID]segment.Hash, len(g.segments))
	for id, s := range g.segments {
		ret[id] = s.ContentHash()
	}
	return ret
}
