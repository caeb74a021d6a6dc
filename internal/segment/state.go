// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package segment

import "fmt"

// State describes where a segment currently sits in its render lifecycle.
type State int

const (
	// StatePending is the initial state of a freshly-created segment: it has
	// never been rendered and no artifact exists for it.
	StatePending State = iota

	// StateRendering means a render of this segment is currently in flight.
	StateRendering

	// StateCached means a valid artifact for the segment's current content
	// hash exists on disk.
	StateCached

	// StateDirty means the segment's content, or the content of one of its
	// ancestors, has changed since its last successful render.
	StateDirty

	// StateError means the most recent render attempt failed. The failure
	// detail is recorded on the segment itself.
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRendering:
		return "rendering"
	case StateCached:
		return "cached"
	case StateDirty:
		return "dirty"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("segment.State(%d)", int(s))
	}
}

// NeedsRender returns true for the states in which a segment has no valid
// artifact and a render should be scheduled for it.
func (s State) NeedsRender() bool {
	return s == StatePending || s == StateDirty || s == StateError
}
