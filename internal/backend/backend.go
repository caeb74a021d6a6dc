// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package backend defines the rendering backend port: the capability set the
// engine needs from whatever actually draws frames, plus a registry through
// which implementations are looked up by tag.
//
// The engine core never renders anything itself; it drives one of these.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/desargues/desargues/internal/quality"
	"github.com/desargues/desargues/internal/segment"
)

// RenderOptions carries the per-render parameters a backend needs.
type RenderOptions struct {
	// OutputFile is the exact path the backend must write the artifact to.
	// The filename already embeds the segment's content hash; backends must
	// not choose their own output location.
	OutputFile string

	// Quality selects frame rate and resolution.
	Quality quality.Setting

	// Timeout bounds a single segment render. Zero means no limit.
	Timeout time.Duration
}

// Backend is a rendering implementation.
//
// Implementations must be safe for concurrent Render calls, or serialize
// internally, because the scheduler renders independent segments in
// parallel.
type Backend interface {
	// Name returns the registry tag of this backend.
	Name() string

	// Init prepares the backend for use. It is called once before any
	// render and must be idempotent.
	Init() error

	// Render builds the segment into a fresh scene and writes the result to
	// opts.OutputFile, returning the path written.
	Render(ctx context.Context, seg segment.Segment, opts RenderOptions) (string, error)

	// Preview is like Render but for a throwaway single-segment artifact
	// that doesn't participate in the cache; backends may cut corners.
	Preview(ctx context.Context, seg segment.Segment, opts RenderOptions) (string, error)

	// Combine concatenates the given already-rendered artifacts into a
	// single output, stream-copying without re-encoding, and returns the
	// output path.
	Combine(ctx context.Context, inputs []string, output string) (string, error)
}

// Error wraps a failure inside a backend. It is recorded on the failing
// segment and emitted as a RenderFailed event, never propagated out of a
// scheduler run.
type Error struct {
	Backend string
	Inner   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %q: %s", e.Backend, e.Inner)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

// TimeoutError indicates a single segment render exceeded its time budget.
// It is treated exactly like any other backend error.
type TimeoutError struct {
	ID      segment.ID
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rendering segment %q did not finish within %s", e.ID, e.Timeout)
}

// CombineError indicates the external concatenation step failed.
type CombineError struct {
	Stderr string
	Inner  error
}

func (e *CombineError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("combining artifacts failed: %s: %s", e.Inner, e.Stderr)
	}
	return fmt.Sprintf("combining artifacts failed: %s", e.Inner)
}

func (e *CombineError) Unwrap() error {
	return e.Inner
}
