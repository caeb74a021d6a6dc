// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package segment defines the unit of caching for the incremental rendering
// engine: an identified, content-hashed piece of an animation produced by an
// opaque construct callable.
//
// Segment values are immutable. Every operation that "changes" a segment
// returns a new value, so segments can be shared freely between graph
// snapshots and concurrent readers without synchronization.
package segment

import (
	"context"
	"fmt"
	"maps"
	"regexp"

	"slices"
)

// ID is the stable symbolic identifier of a segment, unique within a graph.
type ID string

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ParseID validates the given string as a segment id.
func ParseID(s string) (ID, error) {
	if !validID.MatchString(s) {
		return "", &InvalidIDError{ID: ID(s)}
	}
	return ID(s), nil
}

// SceneHandle is an opaque handle into a backend's scene under construction.
// Backends provide a concrete implementation when a segment's construct is
// invoked; constructs call back into whatever richer API the concrete handle
// exposes.
type SceneHandle interface {
	// BackendName returns the tag of the backend that produced this handle.
	BackendName() string
}

// ConstructFunc builds a segment's content into a backend-provided scene.
// The context carries cancellation and deadline for the surrounding render.
type ConstructFunc func(ctx context.Context, scene SceneHandle) error

// Construct pairs a construct callable with its stable content identity.
//
// Go offers no reliable way to derive a stable identity from a function
// value, so the Tag is required: it stands in for the construct's source text
// when computing content hashes. The contract is one-directional — equal tags
// must mean equal behavior, but distinct tags are allowed to behave alike.
type Construct struct {
	// Tag is the stable content identity of Fn. Required.
	Tag string

	// Fn is the callable itself. May be nil on segments recovered from a
	// persisted graph until the caller re-binds it.
	Fn ConstructFunc
}

// Segment is one cacheable unit of an animation.
//
// The zero value of Segment is not valid; use [New].
type Segment struct {
	id         ID
	deps       []ID
	construct  Construct
	sourceUnit string
	metadata   map[string]string
	hash       Hash
	state      State
	artifact   string
	lastErr    string
}

// New creates a segment in [StatePending] with the given identity, construct,
// dependencies, and metadata.
//
// The initial content hash is computed against a placeholder (empty)
// dependency-hash map; adding the segment to a graph recomputes it from the
// real dependency hashes.
func New(id ID, construct Construct, deps []ID, metadata map[string]string) (Segment, error) {
	if _, err := ParseID(string(id)); err != nil {
		return Segment{}, err
	}
	if construct.Tag == "" {
		return Segment{}, &InvalidConstructError{ID: id, Reason: "construct content tag must not be empty"}
	}

	seen := make(map[ID]struct{}, len(deps))
	for _, dep := range deps {
		if _, err := ParseID(string(dep)); err != nil {
			return Segment{}, &InvalidDepsError{ID: id, Reason: fmt.Sprintf("dependency id %q is not a valid segment id", dep)}
		}
		if dep == id {
			return Segment{}, &InvalidDepsError{ID: id, Reason: "a segment cannot depend on itself"}
		}
		if _, dup := seen[dep]; dup {
			return Segment{}, &InvalidDepsError{ID: id, Reason: fmt.Sprintf("dependency %q appears more than once", dep)}
		}
		seen[dep] = struct{}{}
	}

	s := Segment{
		id:        id,
		deps:      slices.Clone(deps),
		construct: construct,
		metadata:  maps.Clone(metadata),
		state:     StatePending,
	}
	s.hash = hashContent(construct.Tag, s.deps, nil, s.metadata)
	return s, nil
}

// ID returns the segment's identifier.
func (s Segment) ID() ID { return s.id }

// Deps returns the segment's dependencies in declaration order. The result
// is a fresh slice the caller may modify.
func (s Segment) Deps() []ID { return slices.Clone(s.deps) }

// Construct returns the segment's construct.
func (s Segment) Construct() Construct { return s.construct }

// SourceUnit returns the identifier of the source module that defined this
// segment, or "" if the segment is not tied to any source unit and therefore
// never invalidated by source changes.
func (s Segment) SourceUnit() string { return s.sourceUnit }

// Metadata returns a copy of the segment's metadata map.
func (s Segment) Metadata() map[string]string {
	if s.metadata == nil {
		return nil
	}
	return maps.Clone(s.metadata)
}

// MetadataValue returns the metadata value for the given key and whether the
// key is present, without copying the whole map.
func (s Segment) MetadataValue(key string) (string, bool) {
	v, ok := s.metadata[key]
	return v, ok
}

// ContentHash returns the segment's current content hash.
func (s Segment) ContentHash() Hash { return s.hash }

// State returns the segment's lifecycle state.
func (s Segment) State() State { return s.state }

// ArtifactPath returns the absolute path of the segment's rendered artifact.
// It is nonempty only in [StateCached].
func (s Segment) ArtifactPath() string { return s.artifact }

// LastError returns the failure message from the most recent render attempt.
// It is nonempty only in [StateError].
func (s Segment) LastError() string { return s.lastErr }

// NeedsRender returns true if the segment has no valid artifact and should be
// scheduled for rendering.
func (s Segment) NeedsRender() bool { return s.state.NeedsRender() }

// Independent returns true if the segment has no dependencies.
func (s Segment) Independent() bool { return len(s.deps) == 0 }

// Rehash returns a copy of the segment whose content hash is recomputed from
// the given dependency hashes. The map must contain a hash for every one of
// the segment's dependencies; entries for other ids are ignored.
func (s Segment) Rehash(depHashes map[ID]Hash) (Segment, error) {
	for _, dep := range s.deps {
		if _, ok := depHashes[dep]; !ok {
			return Segment{}, fmt.Errorf("cannot rehash segment %q: no hash provided for dependency %q", s.id, dep)
		}
	}
	s.hash = hashContent(s.construct.Tag, s.deps, depHashes, s.metadata)
	return s, nil
}

// WithConstruct returns a copy of the segment with a different construct.
// The content hash is NOT recomputed here; callers go through the graph's
// rehash so that dependents pick up the change too.
func (s Segment) WithConstruct(construct Construct) (Segment, error) {
	if construct.Tag == "" {
		return Segment{}, &InvalidConstructError{ID: s.id, Reason: "construct content tag must not be empty"}
	}
	s.construct = construct
	return s, nil
}

// WithMetadata returns a copy of the segment with the given metadata map,
// replacing any previous metadata. As with [Segment.WithConstruct], the hash
// is left for the graph to recompute.
func (s Segment) WithMetadata(metadata map[string]string) Segment {
	s.metadata = maps.Clone(metadata)
	return s
}

// WithSourceUnit returns a copy of the segment associated with the given
// source unit identifier.
func (s Segment) WithSourceUnit(unit string) Segment {
	s.sourceUnit = unit
	return s
}

// MarkDirty returns the segment in [StateDirty], discarding any recorded
// artifact. It is legal from every state and idempotent when the segment is
// already dirty.
func (s Segment) MarkDirty() Segment {
	s.state = StateDirty
	s.artifact = ""
	s.lastErr = ""
	return s
}

// MarkRendering transitions the segment into [StateRendering]. Only pending,
// dirty, and errored segments may start rendering; in particular a cached
// segment must be marked dirty first, which guards against silently
// recomputing an artifact that is already valid.
func (s Segment) MarkRendering() (Segment, error) {
	switch s.state {
	case StatePending, StateDirty, StateError:
		s.state = StateRendering
		s.lastErr = ""
		return s, nil
	default:
		return Segment{}, &IllegalTransitionError{ID: s.id, From: s.state, To: StateRendering}
	}
}

// MarkCached transitions a rendering segment into [StateCached], recording
// the path of its published artifact.
func (s Segment) MarkCached(artifactPath string) (Segment, error) {
	if s.state != StateRendering {
		return Segment{}, &IllegalTransitionError{ID: s.id, From: s.state, To: StateCached}
	}
	if artifactPath == "" {
		return Segment{}, fmt.Errorf("segment %q cannot be cached with an empty artifact path", s.id)
	}
	s.state = StateCached
	s.artifact = artifactPath
	s.lastErr = ""
	return s, nil
}

// MarkError transitions a rendering segment into [StateError], recording the
// failure.
func (s Segment) MarkError(renderErr error) (Segment, error) {
	if s.state != StateRendering {
		return Segment{}, &IllegalTransitionError{ID: s.id, From: s.state, To: StateError}
	}
	msg := "unknown render failure"
	if renderErr != nil {
		msg = renderErr.Error()
	}
	s.state = StateError
	s.artifact = ""
	s.lastErr = msg
	return s, nil
}

// AdoptArtifact returns the segment in [StateCached] referencing an
// artifact the caller has already verified on disk. This is how a fresh
// process picks up work done by an earlier one: the hash-embedding filename
// is the cache manifest, so no render needs to be in flight. Adoption is
// only legal from the states where the segment has no valid artifact.
func (s Segment) AdoptArtifact(artifactPath string) (Segment, error) {
	switch s.state {
	case StatePending, StateDirty, StateError:
	default:
		return Segment{}, &IllegalTransitionError{ID: s.id, From: s.state, To: StateCached}
	}
	if artifactPath == "" {
		return Segment{}, fmt.Errorf("segment %q cannot adopt an empty artifact path", s.id)
	}
	s.state = StateCached
	s.artifact = artifactPath
	s.lastErr = ""
	return s, nil
}

// MarkPending resets the segment to [StatePending] from any state, discarding
// any artifact path and error detail.
func (s Segment) MarkPending() Segment {
	s.state = StatePending
	s.artifact = ""
	s.lastErr = ""
	return s
}

// GoString implements fmt.GoStringer so that test failures print something
// more useful than a pile of unexported fields.
func (s Segment) GoString() string {
	return fmt.Sprintf("segment.Segment{id: %q, state: %s, hash: %s, deps: [%s]}", s.id, s.state, s.hash, describeIDs(s.deps))
}
