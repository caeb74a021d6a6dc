// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package collections

import (
	"cmp"
	"fmt"
	"strings"

	"slices"
)

// Set is a container that can hold each item only once and has a fast lookup time.
//
// You can define a new set like this:
//
//	var initialStates = collections.Set[string]{
//	    "pending": {},
//	    "dirty":   {},
//	}
//
// You can also use the constructor to create a new set
//
//	var initialStates = collections.NewSet("pending", "dirty")
type Set[T comparable] map[T]struct{}

// Constructs a new set given the members of type T
func NewSet[T comparable](members ...T) Set[T] {
	set := Set[T]{}
	for _, member := range members {
		set[member] = struct{}{}
	}
	return set
}

// Has returns true if the item exists in the Set
func (s Set[T]) Has(value T) bool {
	_, ok := s[value]
	return ok
}

// Add inserts the given item into the Set, doing nothing if it is already
// present.
func (s Set[T]) Add(value T) {
	s[value] = struct{}{}
}

// Remove discards the given item from the Set, doing nothing if it is not
// present.
func (s Set[T]) Remove(value T) {
	delete(s, value)
}

// Union returns a new Set containing every member of the receiver and every
// member of the given other set. Neither operand is modified.
func (s Set[T]) Union(other Set[T]) Set[T] {
	ret := make(Set[T], len(s)+len(other))
	for v := range s {
		ret[v] = struct{}{}
	}
	for v := range other {
		ret[v] = struct{}{}
	}
	return ret
}

// Copy returns a new Set with the same members as the receiver, which the
// caller is then free to modify independently.
func (s Set[T]) Copy() Set[T] {
	ret := make(Set[T], len(s))
	for v := range s {
		ret[v] = struct{}{}
	}
	return ret
}

// String creates a comma-separated list of all values in the set.
func (s Set[T]) String() string {
	parts := make([]string, len(s))
	i := 0
	for v := range s {
		parts[i] = fmt.Sprintf("%v", v)
		i++
	}

	slices.SortStableFunc(parts, func(a, b string) int {
		if a < b {
			return -1
		} else if b > a {
			return 1
		} else {
			return 0
		}
	})
	return strings.Join(parts, ", ")
}

// SortedValues returns the members of a set of ordered values as a sorted
// slice, for callers that need a reproducible traversal order.
func SortedValues[T cmp.Ordered](s Set[T]) []T {
	ret := make([]T, 0, len(s))
	for v := range s {
		ret = append(ret, v)
	}
	slices.Sort(ret)
	return ret
}
