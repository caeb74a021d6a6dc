// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package render drives single segments through a render backend: state
// transitions, temp-file publication, and event emission. The driver holds
// no state of its own between calls; everything lives in the caller's graph
// cell.
package render

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/desargues/desargues/internal/backend"
	"github.com/desargues/desargues/internal/events"
	"github.com/desargues/desargues/internal/quality"
	"github.com/desargues/desargues/internal/segment"
)

// GraphCell is the driver's handle on the mutable "current graph" owned by
// the session layer. UpdateSegment must apply f to the named segment's
// current value and install the result atomically with respect to other
// cell updates.
type GraphCell interface {
	UpdateSegment(id segment.ID, f func(segment.Segment) (segment.Segment, error)) error
}

// Options configures one driver invocation.
type Options struct {
	Quality quality.Setting

	// Timeout bounds the backend render of a single segment. Zero means no
	// limit.
	Timeout time.Duration
}

// Driver executes segments through a backend.
type Driver struct {
	backend backend.Backend
	store   *ArtifactStore
	events  *events.Registry
}

// NewDriver returns a driver rendering through the given backend into the
// given store, reporting progress on the given event registry.
func NewDriver(b backend.Backend, store *ArtifactStore, reg *events.Registry) *Driver {
	return &Driver{backend: b, store: store, events: reg}
}

// RenderSegment renders one segment: transitions it into the rendering
// state, invokes the backend against a temp path, verifies and publishes the
// output, and settles the segment as cached or errored.
//
// A render failure is recorded on the segment and emitted as a RenderFailed
// event; it deliberately does NOT come back as an error, because a bad user
// construct is a local condition the rest of the run continues past — the
// boolean reports whether the segment ended up cached. The returned error is
// reserved for engine faults: an illegal state transition (a scheduling
// logic bug) or a cell update failure.
func (d *Driver) RenderSegment(ctx context.Context, cell GraphCell, seg segment.Segment, opts Options) (bool, error) {
	id := seg.ID()
	hash := seg.ContentHash()

	if err := cell.UpdateSegment(id, func(s segment.Segment) (segment.Segment, error) {
		return s.MarkRendering()
	}); err != nil {
		return false, err
	}
	d.events.Emit(events.RenderStarted{ID: id, Hash: hash})

	started := time.Now()
	finalPath, renderErr := d.renderToStore(ctx, seg, opts)
	elapsed := time.Since(started)

	if renderErr != nil {
		log.Printf("[WARN] render: segment %q failed after %s: %s", id, elapsed, renderErr)
		if err := cell.UpdateSegment(id, func(s segment.Segment) (segment.Segment, error) {
			return s.MarkError(renderErr)
		}); err != nil {
			return false, err
		}
		d.events.Emit(events.RenderFailed{ID: id, Hash: hash, Err: renderErr.Error()})
		return false, nil
	}

	log.Printf("[TRACE] render: segment %q cached at %s after %s", id, finalPath, elapsed)
	if err := cell.UpdateSegment(id, func(s segment.Segment) (segment.Segment, error) {
		return s.MarkCached(finalPath)
	}); err != nil {
		return false, err
	}
	d.events.Emit(events.RenderCompleted{ID: id, Hash: hash, Path: finalPath, Elapsed: elapsed})
	return true, nil
}

// renderToStore runs the backend render against the temp path and publishes
// the result, converting backend panics into errors so that a misbehaving
// backend cannot take down the scheduler.
func (d *Driver) renderToStore(ctx context.Context, seg segment.Segment, opts Options) (path string, err error) {
	defer func() {
		if problem := recover(); problem != nil {
			err = &backend.Error{
				Backend: d.backend.Name(),
				Inner:   fmt.Errorf("backend panicked: %v", problem),
			}
		}
	}()

	tmp := d.store.TempPath(seg.ID(), seg.ContentHash())
	if _, err := d.backend.Render(ctx, seg, backend.RenderOptions{
		OutputFile: tmp,
		Quality:    opts.Quality,
		Timeout:    opts.Timeout,
	}); err != nil {
		// Clean up whatever partial output the backend left behind.
		d.store.FS().Remove(tmp)
		return "", wrapBackendError(d.backend.Name(), err)
	}

	final, err := d.store.Publish(seg.ID(), seg.ContentHash())
	if err != nil {
		return "", wrapBackendError(d.backend.Name(), err)
	}
	return final, nil
}

// Preview renders the segment once into the OS temp directory, without
// touching the segment's state or the artifact cache.
func (d *Driver) Preview(ctx context.Context, seg segment.Segment, opts Options) (string, error) {
	dir, err := os.MkdirTemp("", "devx-preview-")
	if err != nil {
		return "", err
	}
	target := filepath.Join(dir, fmt.Sprintf("%s_%s_preview.mp4", seg.ID(), seg.ContentHash()))
	return d.backend.Preview(ctx, seg, backend.RenderOptions{
		OutputFile: target,
		Quality:    opts.Quality,
		Timeout:    opts.Timeout,
	})
}

func wrapBackendError(backendName string, err error) error {
	switch err.(type) {
	case *backend.Error, *backend.TimeoutError:
		return err
	}
	return &backend.Error{Backend: backendName, Inner: err}
}
