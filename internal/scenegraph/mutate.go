// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package scenegraph

import (
	"log"

	"slices"

	"github.com/hashicorp/go-multierror"

	"github.com/desargues/desargues/internal/collections"
	"github.com/desargues/desargues/internal/segment"
)

// Add returns a new graph containing the given segment.
//
// Every dependency the segment declares must already be present, so a graph
// built through Add alone is acyclic by construction. The added segment's
// content hash is recomputed against its dependencies' current hashes.
func (g *Graph) Add(seg segment.Segment) (*Graph, error) {
	id := seg.ID()
	if _, exists := g.segments[id]; exists {
		return nil, &DuplicateIDError{ID: id}
	}
	missing := collections.NewSet[segment.ID]()
	for _, dep := range seg.Deps() {
		if _, ok := g.segments[dep]; !ok {
			missing.Add(dep)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingDepsError{ID: id, Missing: missing}
	}

	ret := g.clone()
	ret.insert(seg)
	if err := ret.recomputeTopo(); err != nil {
		// Unreachable as long as the invariant above holds: a node whose
		// out-edges all point at existing nodes cannot close a cycle.
		return nil, err
	}
	if err := ret.rehashOne(id); err != nil {
		return nil, err
	}
	return ret, nil
}

// AddAll returns a new graph containing every given segment, accepted in any
// order as long as the final collection is a DAG and every dependency id
// refers either to an existing segment or to another segment in the batch.
//
// On any validation failure a nil graph is returned alongside the error and
// the receiver is left unchanged; a batch is applied atomically or not at all.
func (g *Graph) AddAll(segs []segment.Segment) (*Graph, error) {
	ret := g.clone()

	var errs *multierror.Error
	batch := collections.NewSet[segment.ID]()
	for _, seg := range segs {
		id := seg.ID()
		if _, exists := g.segments[id]; exists {
			errs = multierror.Append(errs, &DuplicateIDError{ID: id})
			continue
		}
		if batch.Has(id) {
			errs = multierror.Append(errs, &DuplicateIDError{ID: id})
			continue
		}
		batch.Add(id)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	// First pass: make sure every declared dependency will exist once the
	// whole batch is inserted.
	for _, seg := range segs {
		missing := collections.NewSet[segment.ID]()
		for _, dep := range seg.Deps() {
			if _, ok := g.segments[dep]; !ok && !batch.Has(dep) {
				missing.Add(dep)
			}
		}
		if len(missing) > 0 {
			errs = multierror.Append(errs, &MissingDepsError{ID: seg.ID(), Missing: missing})
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	// Second pass: insert everything in the given order, then let the
	// topological sort detect any cycle within the batch.
	for _, seg := range segs {
		ret.insert(seg)
	}
	if err := ret.recomputeTopo(); err != nil {
		return nil, err
	}

	// With the order settled, give every new segment its real content hash,
	// dependencies first.
	for _, id := range ret.topo {
		if !batch.Has(id) {
			continue
		}
		if err := ret.rehashOne(id); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// Remove returns a new graph without the given segment. Removal is refused
// while other segments depend on it.
func (g *Graph) Remove(id segment.ID) (*Graph, error) {
	seg, ok := g.segments[id]
	if !ok {
		return nil, &UnknownSegmentError{ID: id}
	}
	if dependents := g.reverse[id]; len(dependents) > 0 {
		return nil, &HasDependentsError{ID: id, Dependents: dependents.Copy()}
	}

	ret := g.clone()
	delete(ret.segments, id)
	delete(ret.insertion, id)
	delete(ret.reverse, id)
	for _, dep := range seg.Deps() {
		ret.reverse[dep].Remove(id)
	}
	if err := ret.recomputeTopo(); err != nil {
		return nil, err
	}
	return ret, nil
}

// Update returns a new graph in which the given segment has been replaced by
// the result of f. The segment's id and dependency list are pinned: an f
// that changes either fails with [IdentityViolationError], because both are
// structural properties the rest of the graph is built around.
func (g *Graph) Update(id segment.ID, f func(segment.Segment) (segment.Segment, error)) (*Graph, error) {
	old, ok := g.segments[id]
	if !ok {
		return nil, &UnknownSegmentError{ID: id}
	}
	updated, err := f(old)
	if err != nil {
		return nil, err
	}
	if updated.ID() != id || !slices.Equal(updated.Deps(), old.Deps()) {
		return nil, &IdentityViolationError{ID: id}
	}

	ret := g.clone()
	ret.segments[id] = updated
	return ret, nil
}

// MarkDirty returns a new graph in which the given segment and every one of
// its transitive dependents are dirty. Dependents that are already dirty or
// still pending are left as they are; nothing about them became staler.
//
// The operation is pure, so concurrent readers of the old graph value see
// either none or all of the propagation, never a partial mix.
func (g *Graph) MarkDirty(id segment.ID) (*Graph, error) {
	seg, ok := g.segments[id]
	if !ok {
		return nil, &UnknownSegmentError{ID: id}
	}

	ret := g.clone()
	ret.segments[id] = seg.MarkDirty()
	for dependent := range g.TransitiveDependents(id) {
		s := ret.segments[dependent]
		switch s.State() {
		case segment.StateDirty, segment.StatePending:
			continue
		}
		ret.segments[dependent] = s.MarkDirty()
	}
	return ret, nil
}

// MarkAllDirty returns a new graph in which every segment is dirty.
func (g *Graph) MarkAllDirty() *Graph {
	ret := g.clone()
	for id, s := range ret.segments {
		ret.segments[id] = s.MarkDirty()
	}
	return ret
}

// RehashAll returns a new graph in which every segment's content hash has
// been recomputed from its dependencies' current hashes, walking in
// topological order so that hash changes ripple downstream in one pass.
// Segments whose hash changed are marked dirty; this is how content drift
// (as opposed to an explicit dirty marking) propagates. Applying RehashAll
// twice in a row yields the same graph.
func (g *Graph) RehashAll() (*Graph, error) {
	ret := g.clone()
	for _, id := range ret.topo {
		if err := ret.rehashOne(id); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// insert records a segment in the graph's tables without any validation or
// re-sorting; callers do both.
func (g *Graph) insert(seg segment.Segment) {
	id := seg.ID()
	g.segments[id] = seg
	g.insertion[id] = g.nextSeq
	g.nextSeq++
	if _, ok := g.reverse[id]; !ok {
		g.reverse[id] = collections.NewSet[segment.ID]()
	}
	for _, dep := range seg.Deps() {
		if _, ok := g.reverse[dep]; !ok {
			g.reverse[dep] = collections.NewSet[segment.ID]()
		}
		g.reverse[dep].Add(id)
	}
}

// rehashOne recomputes one segment's hash in place (on a cloned graph) from
// its dependencies' current hashes, marking the segment dirty if the hash
// moved and the segment isn't already awaiting a render.
func (g *Graph) rehashOne(id segment.ID) error {
	s := g.segments[id]
	rehashed, err := s.Rehash(g.hashes())
	if err != nil {
		return err
	}
	if rehashed.ContentHash() != s.ContentHash() {
		log.Printf("[TRACE] scenegraph: content hash of %q moved %s -> %s", id, s.ContentHash(), rehashed.ContentHash())
		switch s.State() {
		case segment.StateDirty, segment.StatePending:
			// already awaiting a render; nothing staler than before
		default:
			rehashed = rehashed.MarkDirty()
		}
	}
	g.segments[id] = rehashed
	return nil
}
