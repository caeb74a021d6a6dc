// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package execbackend is a render backend that shells out to an external
// rendering toolchain, with the command lines supplied as templates so the
// same backend drives any renderer that can be invoked per segment.
//
// Combining delegates to a stream-copy concatenation tool (ffmpeg's concat
// demuxer by default) fed through a temporary manifest file.
package execbackend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/desargues/desargues/internal/backend"
	"github.com/desargues/desargues/internal/segment"
)

// Tag is the registry tag of this backend.
const Tag = "exec"

// DefaultCombineCommand drives ffmpeg's concat demuxer, which stream-copies
// its inputs without re-encoding.
const DefaultCombineCommand = "ffmpeg -y -f concat -safe 0 -i {manifest} -c copy {output}"

// Config holds the command templates. Within a template the placeholders
// {segment}, {hash}, {scene}, {quality}, {fps}, {height}, and {output} are
// substituted for a render, and {manifest} and {output} for a combine.
type Config struct {
	// RenderCommand produces one segment artifact. Required.
	RenderCommand string

	// CombineCommand concatenates artifacts. Defaults to
	// [DefaultCombineCommand].
	CombineCommand string

	// WorkDir is the working directory for spawned commands. Defaults to
	// the process working directory.
	WorkDir string
}

// Backend implements [backend.Backend] by spawning external commands.
type Backend struct {
	config Config

	initOnce sync.Once
}

var _ backend.Backend = (*Backend)(nil)

// New returns an exec backend with the given configuration.
func New(config Config) (*Backend, error) {
	if config.RenderCommand == "" {
		return nil, fmt.Errorf("exec backend requires a render command template")
	}
	if config.CombineCommand == "" {
		config.CombineCommand = DefaultCombineCommand
	}
	return &Backend{config: config}, nil
}

// Scene collects the directives a segment construct emits, which are handed
// to the external renderer as a scene file.
type Scene struct {
	mu         sync.Mutex
	directives []string
}

func (s *Scene) BackendName() string { return Tag }

// Emit appends one directive line to the scene file.
func (s *Scene) Emit(directive string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directives = append(s.directives, directive)
}

func (b *Backend) Name() string { return Tag }

func (b *Backend) Init() error {
	var err error
	b.initOnce.Do(func() {
		if b.config.WorkDir != "" {
			err = os.MkdirAll(b.config.WorkDir, 0755)
		}
	})
	return err
}

func (b *Backend) Render(ctx context.Context, seg segment.Segment, opts backend.RenderOptions) (string, error) {
	scene := &Scene{}
	if fn := seg.Construct().Fn; fn != nil {
		if err := fn(ctx, scene); err != nil {
			return "", err
		}
	}

	sceneFile, err := b.writeSceneFile(seg, scene)
	if err != nil {
		return "", err
	}
	defer os.Remove(sceneFile)

	repl := strings.NewReplacer(
		"{segment}", string(seg.ID()),
		"{hash}", string(seg.ContentHash()),
		"{scene}", sceneFile,
		"{quality}", opts.Quality.Tag,
		"{fps}", strconv.Itoa(opts.Quality.FPS),
		"{height}", strconv.Itoa(opts.Quality.Height),
		"{output}", opts.OutputFile,
	)

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if _, err := b.run(runCtx, repl.Replace(b.config.RenderCommand)); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", &backend.TimeoutError{ID: seg.ID(), Timeout: opts.Timeout}
		}
		return "", err
	}
	return opts.OutputFile, nil
}

func (b *Backend) Preview(ctx context.Context, seg segment.Segment, opts backend.RenderOptions) (string, error) {
	return b.Render(ctx, seg, opts)
}

func (b *Backend) Combine(ctx context.Context, inputs []string, output string) (string, error) {
	manifest, err := writeConcatManifest(inputs)
	if err != nil {
		return "", &backend.CombineError{Inner: err}
	}
	defer os.Remove(manifest)

	repl := strings.NewReplacer(
		"{manifest}", manifest,
		"{output}", output,
	)
	if stderr, err := b.run(ctx, repl.Replace(b.config.CombineCommand)); err != nil {
		return "", &backend.CombineError{Stderr: stderr, Inner: err}
	}
	return output, nil
}

// run parses the substituted command line and executes it, returning any
// captured stderr alongside the failure on nonzero exit.
func (b *Backend) run(ctx context.Context, commandLine string) (string, error) {
	args, err := shellwords.Parse(commandLine)
	if err != nil {
		return "", fmt.Errorf("parsing command line %q: %w", commandLine, err)
	}
	if len(args) == 0 {
		return "", fmt.Errorf("empty command line")
	}

	log.Printf("[DEBUG] execbackend: running %q", commandLine)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = b.config.WorkDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		captured := strings.TrimSpace(stderr.String())
		if captured != "" {
			return captured, fmt.Errorf("%s: %w: %s", args[0], err, captured)
		}
		return "", fmt.Errorf("%s: %w", args[0], err)
	}
	return "", nil
}

func (b *Backend) writeSceneFile(seg segment.Segment, scene *Scene) (string, error) {
	f, err := os.CreateTemp("", fmt.Sprintf("devx-scene-%s-*.txt", seg.ID()))
	if err != nil {
		return "", err
	}
	defer f.Close()

	scene.mu.Lock()
	directives := scene.directives
	scene.mu.Unlock()
	for _, d := range directives {
		if _, err := fmt.Fprintln(f, d); err != nil {
			os.Remove(f.Name())
			return "", err
		}
	}
	return f.Name(), nil
}

// writeConcatManifest writes the concat-demuxer manifest: one quoted entry
// per input, in order.
func writeConcatManifest(inputs []string) (string, error) {
	f, err := os.CreateTemp("", "devx-concat-*.txt")
	if err != nil {
		return "", err
	}
	defer f.Close()

	for _, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			os.Remove(f.Name())
			return "", err
		}
		// Single quotes in the path itself use the concat demuxer's own
		// escaping rule: close the quote, emit an escaped quote, reopen.
		quoted := strings.ReplaceAll(abs, "'", `'\''`)
		if _, err := fmt.Fprintf(f, "file '%s'\n", quoted); err != nil {
			os.Remove(f.Name())
			return "", err
		}
	}
	return f.Name(), nil
}
