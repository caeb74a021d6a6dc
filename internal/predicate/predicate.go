// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package predicate implements composable queries over the segments of a
// scene graph: a small set of atoms describing properties of a single
// segment, combinators for assembling them, and graph-level helpers that
// apply them.
package predicate

import (
	"regexp"

	"slices"

	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/segment"
)

// Predicate reports whether a segment has some property. Predicates are
// pure functions and must not retain or mutate the segments they inspect.
type Predicate func(segment.Segment) bool

// HasState matches segments currently in the given state.
func HasState(state segment.State) Predicate {
	return func(s segment.Segment) bool {
		return s.State() == state
	}
}

// HasID matches the single segment with the given id.
func HasID(id segment.ID) Predicate {
	return func(s segment.Segment) bool {
		return s.ID() == id
	}
}

// DependsOn matches segments that directly depend on the given id.
func DependsOn(id segment.ID) Predicate {
	return func(s segment.Segment) bool {
		return slices.Contains(s.Deps(), id)
	}
}

// Independent matches segments with no dependencies.
func Independent() Predicate {
	return segment.Segment.Independent
}

// HasMetadata matches segments that carry the given metadata key.
func HasMetadata(key string) Predicate {
	return func(s segment.Segment) bool {
		_, ok := s.MetadataValue(key)
		return ok
	}
}

// MetadataEquals matches segments whose metadata has the given key set to
// exactly the given value.
func MetadataEquals(key, value string) Predicate {
	return func(s segment.Segment) bool {
		v, ok := s.MetadataValue(key)
		return ok && v == value
	}
}

// IDMatches matches segments whose id matches the given regular expression.
func IDMatches(pattern string) (Predicate, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return func(s segment.Segment) bool {
		return re.MatchString(string(s.ID()))
	}, nil
}

// Where lifts an arbitrary caller-supplied function into a predicate, as the
// escape hatch for properties the named atoms don't cover.
func Where(fn func(segment.Segment) bool) Predicate {
	return fn
}

// And matches segments that satisfy every given predicate. With no operands
// it matches everything.
func And(preds ...Predicate) Predicate {
	return func(s segment.Segment) bool {
		for _, p := range preds {
			if !p(s) {
				return false
			}
		}
		return true
	}
}

// Or matches segments that satisfy at least one of the given predicates.
// With no operands it matches nothing.
func Or(preds ...Predicate) Predicate {
	return func(s segment.Segment) bool {
		for _, p := range preds {
			if p(s) {
				return true
			}
		}
		return false
	}
}

// Not matches segments that do not satisfy the given predicate.
func Not(p Predicate) Predicate {
	return func(s segment.Segment) bool {
		return !p(s)
	}
}

// Find returns every segment in the graph satisfying the predicate, in the
// graph's render order.
func Find(g *scenegraph.Graph, p Predicate) []segment.Segment {
	var ret []segment.Segment
	for _, s := range g.AllSegments() {
		if p(s) {
			ret = append(ret, s)
		}
	}
	return ret
}

// Count returns how many segments in the graph satisfy the predicate.
func Count(g *scenegraph.Graph, p Predicate) int {
	return len(Find(g, p))
}

// Any returns true if at least one segment in the graph satisfies the
// predicate.
func Any(g *scenegraph.Graph, p Predicate) bool {
	for _, s := range g.AllSegments() {
		if p(s) {
			return true
		}
	}
	return false
}

// All returns true if every segment in the graph satisfies the predicate.
// An empty graph satisfies every predicate.
func All(g *scenegraph.Graph, p Predicate) bool {
	for _, s := range g.AllSegments() {
		if !p(s) {
			return false
		}
	}
	return true
}

// Partition splits the graph's segments into those satisfying the predicate
// and those that don't, both in render order.
func Partition(g *scenegraph.Graph, p Predicate) (matching, rest []segment.Segment) {
	for _, s := range g.AllSegments() {
		if p(s) {
			matching = append(matching, s)
		} else {
			rest = append(rest, s)
		}
	}
	return matching, rest
}
