// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package graphrepo persists scene graphs between sessions.
//
// A persisted snapshot round-trips all of a graph's structural data —
// segments, dependencies, hashes, states, metadata, artifact paths — but not
// the construct callables, which are code. Callers re-supply those on load,
// keyed by segment id; segments whose callable is missing come back dirty.
package graphrepo

import (
	"fmt"
	"regexp"

	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/segment"
)

// Repository stores named graph snapshots.
type Repository interface {
	// Save persists the graph under the given id, replacing any previous
	// snapshot with that id.
	Save(id string, g *scenegraph.Graph) error

	// Load rebuilds the graph saved under the given id, re-binding the
	// given construct callables by segment id. It returns nil and no error
	// if no snapshot with that id exists.
	Load(id string, constructs map[segment.ID]segment.Construct) (*scenegraph.Graph, error)

	// Exists reports whether a snapshot with the given id exists.
	Exists(id string) (bool, error)

	// List returns the ids of every stored snapshot, in lexical order.
	List() ([]string, error)

	// Delete removes the snapshot with the given id, reporting whether one
	// was present.
	Delete(id string) (bool, error)
}

var validSnapshotID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

func checkSnapshotID(id string) error {
	if !validSnapshotID.MatchString(id) {
		return fmt.Errorf("invalid graph snapshot id %q", id)
	}
	return nil
}
