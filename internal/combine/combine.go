// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package combine assembles cached per-segment artifacts into a single
// output. It owns selection and ordering; the byte-level concatenation is a
// backend capability.
package combine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/desargues/desargues/internal/backend"
	"github.com/desargues/desargues/internal/collections"
	"github.com/desargues/desargues/internal/events"
	"github.com/desargues/desargues/internal/render"
	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/segment"
)

// NotCachedError indicates that combining was refused because some selected
// segments have no valid artifact. Nothing is written when this is
// returned.
type NotCachedError struct {
	IDs collections.Set[segment.ID]
}

func (e *NotCachedError) Error() string {
	return fmt.Sprintf("cannot combine: segments not cached: %s", e.IDs)
}

// Combiner concatenates cached artifacts through a backend.
type Combiner struct {
	backend backend.Backend
	store   *render.ArtifactStore
	events  *events.Registry
}

// New returns a combiner using the given backend and artifact store.
func New(b backend.Backend, store *render.ArtifactStore, reg *events.Registry) *Combiner {
	return &Combiner{backend: b, store: store, events: reg}
}

// Combine concatenates the selected segments' artifacts into outputPath
// (resolved against the store's output directory when relative) and returns
// the path written.
//
// A nil order selects every segment in topological order; an explicit order
// selects exactly the listed segments in the given sequence. Every selected
// segment must be cached with a valid artifact, or the whole operation is
// refused with [NotCachedError] before anything is written.
func (c *Combiner) Combine(ctx context.Context, g *scenegraph.Graph, outputPath string, order []segment.ID) (string, error) {
	if g.Count() == 0 {
		return "", fmt.Errorf("cannot combine an empty graph")
	}
	if order == nil {
		order = g.RenderOrder()
	}

	var errs *multierror.Error
	notCached := collections.NewSet[segment.ID]()
	inputs := make([]string, 0, len(order))
	for _, id := range order {
		s, ok := g.Get(id)
		if !ok {
			errs = multierror.Append(errs, &scenegraph.UnknownSegmentError{ID: id})
			continue
		}
		if s.State() != segment.StateCached || !c.store.IsCached(id, s.ContentHash()) {
			notCached.Add(id)
			continue
		}
		inputs = append(inputs, s.ArtifactPath())
	}
	if err := errs.ErrorOrNil(); err != nil {
		return "", err
	}
	if len(notCached) > 0 {
		return "", &NotCachedError{IDs: notCached}
	}

	output := c.store.OutputPath(outputPath)
	c.events.Emit(events.CombineStarted{Output: output, Inputs: order})
	log.Printf("[DEBUG] combine: concatenating %d artifacts into %s", len(inputs), output)

	started := time.Now()
	written, err := c.backend.Combine(ctx, inputs, output)
	if err != nil {
		return "", err
	}
	c.events.Emit(events.CombineCompleted{Output: written, Elapsed: time.Since(started)})
	return written, nil
}
