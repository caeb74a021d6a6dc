// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package events defines the engine's observable event stream: the event
// payload types and a registry of handlers that they fan out to.
package events

import (
	"time"

	"github.com/desargues/desargues/internal/segment"
)

// Kind discriminates the event payload types.
type Kind string

const (
	KindSourceChanged      Kind = "source_changed"
	KindSegmentMarkedDirty Kind = "segment_marked_dirty"
	KindRenderStarted      Kind = "render_started"
	KindRenderCompleted    Kind = "render_completed"
	KindRenderFailed       Kind = "render_failed"
	KindCombineStarted     Kind = "combine_started"
	KindCombineCompleted   Kind = "combine_completed"
)

// Event is implemented by every event payload in this package.
type Event interface {
	EventKind() Kind
}

// Envelope wraps an event payload with the bookkeeping assigned at emission:
// a unique id and a timestamp. Handlers receive envelopes rather than bare
// payloads so that the bookkeeping travels with the event.
type Envelope struct {
	// ID uniquely identifies this emission.
	ID string

	// Time is when the event was emitted, unless the emitter supplied an
	// explicit earlier timestamp.
	Time time.Time

	Event Event
}

// SourceChanged reports that a watched source unit changed and names the
// segments affected by the change.
type SourceChanged struct {
	Unit     string
	Affected []segment.ID
}

func (SourceChanged) EventKind() Kind { return KindSourceChanged }

// SegmentMarkedDirty reports that a segment was explicitly invalidated.
type SegmentMarkedDirty struct {
	ID segment.ID
}

func (SegmentMarkedDirty) EventKind() Kind { return KindSegmentMarkedDirty }

// RenderStarted reports that a segment render has begun.
type RenderStarted struct {
	ID   segment.ID
	Hash segment.Hash
}

func (RenderStarted) EventKind() Kind { return KindRenderStarted }

// RenderCompleted reports a successful segment render.
type RenderCompleted struct {
	ID      segment.ID
	Hash    segment.Hash
	Path    string
	Elapsed time.Duration
}

func (RenderCompleted) EventKind() Kind { return KindRenderCompleted }

// RenderFailed reports a failed segment render. The failure stays attached
// to the segment; this event is the only way it propagates outward.
type RenderFailed struct {
	ID   segment.ID
	Hash segment.Hash
	Err  string
}

func (RenderFailed) EventKind() Kind { return KindRenderFailed }

// CombineStarted reports that per-segment artifacts are being concatenated.
type CombineStarted struct {
	Output string
	Inputs []segment.ID
}

func (CombineStarted) EventKind() Kind { return KindCombineStarted }

// CombineCompleted reports a finished concatenation.
type CombineCompleted struct {
	Output  string
	Elapsed time.Duration
}

func (CombineCompleted) EventKind() Kind { return KindCombineCompleted }
