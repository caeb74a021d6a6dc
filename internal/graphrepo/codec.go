// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package graphrepo

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/segment"
)

// snapshotFormatVersion guards against future snapshot layout changes. A
// reader refuses versions it doesn't know rather than guessing.
const snapshotFormatVersion = 1

type graphSnapshot struct {
	FormatVersion int               `json:"format_version"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	// Segments are stored in the graph's render order so that rebuilding
	// through AddAll reproduces the same insertion-order tie-breaks.
	Segments []segmentSnapshot `json:"segments"`
}

type segmentSnapshot struct {
	ID           string            `json:"id"`
	Deps         []string          `json:"deps,omitempty"`
	ConstructTag string            `json:"construct_tag"`
	SourceUnit   string            `json:"source_unit,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Hash         string            `json:"hash"`
	State        string            `json:"state"`
	ArtifactPath string            `json:"artifact_path,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
}

var stateNames = map[string]segment.State{
	segment.StatePending.String():   segment.StatePending,
	segment.StateRendering.String(): segment.StateRendering,
	segment.StateCached.String():    segment.StateCached,
	segment.StateDirty.String():     segment.StateDirty,
	segment.StateError.String():     segment.StateError,
}

func marshalGraph(g *scenegraph.Graph) ([]byte, error) {
	snap := graphSnapshot{
		FormatVersion: snapshotFormatVersion,
		Metadata:      g.Metadata(),
	}
	for _, s := range g.AllSegments() {
		deps := make([]string, 0, len(s.Deps()))
		for _, dep := range s.Deps() {
			deps = append(deps, string(dep))
		}
		snap.Segments = append(snap.Segments, segmentSnapshot{
			ID:           string(s.ID()),
			Deps:         deps,
			ConstructTag: s.Construct().Tag,
			SourceUnit:   s.SourceUnit(),
			Metadata:     s.Metadata(),
			Hash:         string(s.ContentHash()),
			State:        s.State().String(),
			ArtifactPath: s.ArtifactPath(),
			LastError:    s.LastError(),
		})
	}
	return json.MarshalIndent(snap, "", "  ")
}

func unmarshalGraph(data []byte, constructs map[segment.ID]segment.Construct) (*scenegraph.Graph, error) {
	var snap graphSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("malformed graph snapshot: %w", err)
	}
	if snap.FormatVersion != snapshotFormatVersion {
		return nil, fmt.Errorf("graph snapshot uses format version %d; this engine reads version %d", snap.FormatVersion, snapshotFormatVersion)
	}

	segs := make([]segment.Segment, 0, len(snap.Segments))
	var missingConstruct []segment.ID
	for _, ss := range snap.Segments {
		id := segment.ID(ss.ID)
		state, ok := stateNames[ss.State]
		if !ok {
			return nil, fmt.Errorf("segment %q has unknown state %q", ss.ID, ss.State)
		}
		// A snapshot taken mid-render describes work that no longer exists;
		// the segment has to be rendered again.
		if state == segment.StateRendering {
			state = segment.StateDirty
		}

		construct, bound := constructs[id]
		if !bound {
			construct = segment.Construct{Tag: ss.ConstructTag}
		}

		deps := make([]segment.ID, 0, len(ss.Deps))
		for _, dep := range ss.Deps {
			deps = append(deps, segment.ID(dep))
		}
		params := segment.RestoreParams{
			ID:           id,
			Deps:         deps,
			Construct:    construct,
			SourceUnit:   ss.SourceUnit,
			Metadata:     ss.Metadata,
			Hash:         segment.Hash(ss.Hash),
			State:        state,
			ArtifactPath: ss.ArtifactPath,
			LastError:    ss.LastError,
		}
		if !bound {
			// Without its callable the segment cannot be re-rendered as-is,
			// so it must come back dirty and wait for the caller to supply
			// the construct before the next render cycle.
			missingConstruct = append(missingConstruct, id)
			params.State = segment.StateDirty
			params.ArtifactPath = ""
			params.LastError = ""
		}
		s, err := segment.Restore(params)
		if err != nil {
			return nil, err
		}
		segs = append(segs, s)
	}

	g, err := scenegraph.Empty(snap.Metadata).AddAll(segs)
	if err != nil {
		return nil, fmt.Errorf("rebuilding graph from snapshot: %w", err)
	}
	if len(missingConstruct) > 0 {
		log.Printf("[WARN] graphrepo: %d segments loaded without construct callables and marked dirty: %v", len(missingConstruct), missingConstruct)
	}

	// Re-supplied constructs may carry different content tags than the
	// snapshot recorded; a rehash propagates any such drift to dependents.
	return g.RehashAll()
}
