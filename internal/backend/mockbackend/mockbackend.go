// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package mockbackend is a render backend that writes deterministic
// placeholder artifacts instead of real frames. It exists for tests and for
// exercising the engine without a rendering toolchain installed.
package mockbackend

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"slices"

	"github.com/spf13/afero"

	"github.com/desargues/desargues/internal/backend"
	"github.com/desargues/desargues/internal/segment"
)

// Tag is the registry tag of this backend.
const Tag = "mock"

// Backend implements [backend.Backend] against an afero filesystem.
//
// The exported knobs configure failure injection and artificial latency for
// scheduler tests; they must be set before rendering starts.
type Backend struct {
	// FailFor makes renders of the listed segments fail with the given
	// error instead of producing an artifact.
	FailFor map[segment.ID]error

	// RenderDelay is slept inside every render, to widen scheduling windows
	// in concurrency tests.
	RenderDelay time.Duration

	fs afero.Fs

	mu       sync.Mutex
	rendered []segment.ID
}

var _ backend.Backend = (*Backend)(nil)

// New returns a mock backend writing through the given filesystem.
func New(fs afero.Fs) *Backend {
	return &Backend{fs: fs}
}

// Scene is the opaque handle passed to segment constructs.
type Scene struct {
	segmentID segment.ID
}

func (s *Scene) BackendName() string { return Tag }

func (b *Backend) Name() string { return Tag }

func (b *Backend) Init() error { return nil }

// Rendered returns the ids of every segment rendered so far, in completion
// order.
func (b *Backend) Rendered() []segment.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.rendered)
}

func (b *Backend) Render(ctx context.Context, seg segment.Segment, opts backend.RenderOptions) (string, error) {
	if b.RenderDelay > 0 {
		select {
		case <-time.After(b.RenderDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if failErr, ok := b.FailFor[seg.ID()]; ok {
		return "", failErr
	}

	if fn := seg.Construct().Fn; fn != nil {
		if err := fn(ctx, &Scene{segmentID: seg.ID()}); err != nil {
			return "", err
		}
	}

	content := fmt.Sprintf("mock artifact: segment=%s hash=%s quality=%s\n",
		seg.ID(), seg.ContentHash(), opts.Quality.Tag)
	if err := b.writeFile(opts.OutputFile, []byte(content)); err != nil {
		return "", err
	}

	b.mu.Lock()
	b.rendered = append(b.rendered, seg.ID())
	b.mu.Unlock()
	return opts.OutputFile, nil
}

func (b *Backend) Preview(ctx context.Context, seg segment.Segment, opts backend.RenderOptions) (string, error) {
	return b.Render(ctx, seg, opts)
}

func (b *Backend) Combine(ctx context.Context, inputs []string, output string) (string, error) {
	var buf bytes.Buffer
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		data, err := afero.ReadFile(b.fs, input)
		if err != nil {
			return "", &backend.CombineError{Inner: err}
		}
		buf.Write(data)
	}
	if err := b.writeFile(output, buf.Bytes()); err != nil {
		return "", &backend.CombineError{Inner: err}
	}
	return output, nil
}

func (b *Backend) writeFile(path string, data []byte) error {
	if err := b.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return afero.WriteFile(b.fs, path, data, 0644)
}
