// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package segment

import (
	"fmt"
	"maps"

	"slices"
)

// RestoreParams carries the full persisted form of a segment, for graph
// repositories rebuilding a graph from a snapshot.
type RestoreParams struct {
	ID           ID
	Deps         []ID
	Construct    Construct
	SourceUnit   string
	Metadata     map[string]string
	Hash         Hash
	State        State
	ArtifactPath string
	LastError    string
}

// Restore rebuilds a segment value from its persisted form, bypassing the
// usual lifecycle transitions. Unlike [New] it trusts the stored hash and
// state, because they were produced by a prior engine session; it still
// rejects snapshots that violate the segment's own invariants, since those
// indicate a corrupted or hand-edited snapshot.
func Restore(params RestoreParams) (Segment, error) {
	if _, err := ParseID(string(params.ID)); err != nil {
		return Segment{}, err
	}
	if _, err := ParseHash(string(params.Hash)); err != nil {
		return Segment{}, fmt.Errorf("segment %q has invalid stored hash: %w", params.ID, err)
	}
	if params.State == StateCached && params.ArtifactPath == "" {
		return Segment{}, fmt.Errorf("segment %q is recorded as cached but has no artifact path", params.ID)
	}
	if params.State == StateError && params.LastError == "" {
		return Segment{}, fmt.Errorf("segment %q is recorded as errored but has no error detail", params.ID)
	}
	if params.Construct.Tag == "" {
		return Segment{}, &InvalidConstructError{ID: params.ID, Reason: "construct content tag must not be empty"}
	}

	s := Segment{
		id:         params.ID,
		deps:       slices.Clone(params.Deps),
		construct:  params.Construct,
		sourceUnit: params.SourceUnit,
		metadata:   maps.Clone(params.Metadata),
		hash:       params.Hash,
		state:      params.State,
	}
	switch params.State {
	case StateCached:
		s.artifact = params.ArtifactPath
	case StateError:
		s.lastErr = params.LastError
	}
	return s, nil
}
