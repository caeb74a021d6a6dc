// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package scenegraph

import (
	"fmt"

	"github.com/desargues/desargues/internal/collections"
	"github.com/desargues/desargues/internal/segment"
)

// DuplicateIDError indicates an attempt to add a segment whose id is already
// present in the graph.
type DuplicateIDError struct {
	ID segment.ID
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("graph already contains a segment named %q", e.ID)
}

// MissingDepsError indicates that a segment declares dependencies on ids
// that are not present in the graph.
type MissingDepsError struct {
	ID      segment.ID
	Missing collections.Set[segment.ID]
}

func (e *MissingDepsError) Error() string {
	return fmt.Sprintf("segment %q depends on segments not present in the graph: %s", e.ID, e.Missing)
}

// CycleError indicates that a proposed set of segments contains a dependency
// cycle. The graph it was reported against is left unchanged.
type CycleError struct {
	IDs collections.Set[segment.ID]
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("segment dependencies form a cycle through: %s", e.IDs)
}

// HasDependentsError indicates that a segment cannot be removed because
// other segments are built on top of it.
type HasDependentsError struct {
	ID         segment.ID
	Dependents collections.Set[segment.ID]
}

func (e *HasDependentsError) Error() string {
	return fmt.Sprintf("cannot remove segment %q: still required by %s", e.ID, e.Dependents)
}

// IdentityViolationError indicates that an update callback tried to change a
// segment's id or dependency list, both of which are pinned once the segment
// is part of a graph.
type IdentityViolationError struct {
	ID segment.ID
}

func (e *IdentityViolationError) Error() string {
	return fmt.Sprintf("update of segment %q changed its id or dependencies, which are pinned", e.ID)
}

// UnknownSegmentError indicates that an operation referred to a segment id
// that is not present in the graph.
type UnknownSegmentError struct {
	ID segment.ID
}

func (e *UnknownSegmentError) Error() string {
	return fmt.Sprintf("graph has no segment named %q", e.ID)
}
