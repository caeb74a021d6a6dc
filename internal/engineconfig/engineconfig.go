// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package engineconfig loads the optional engine configuration file
// (desargues.hcl): output locations, backend selection, worker pool size,
// watch roots, and extra quality presets.
package engineconfig

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/desargues/desargues/internal/quality"
)

// DefaultFilename is where [Load] looks when the caller doesn't name a
// config file explicitly.
const DefaultFilename = "desargues.hcl"

// Config is the decoded engine configuration. Zero values mean "use the
// built-in default"; see [Default].
type Config struct {
	// OutputRoot is the directory holding partial/ and output/.
	OutputRoot string `hcl:"output_root,optional"`

	// ArtifactExt is the container extension for rendered artifacts.
	ArtifactExt string `hcl:"artifact_ext,optional"`

	// Backend selects the render backend by registry tag.
	Backend string `hcl:"backend,optional"`

	// DefaultQuality names the preset used when a render doesn't specify
	// one.
	DefaultQuality string `hcl:"default_quality,optional"`

	// WorkerCount sizes the render pool; zero means one worker per
	// hardware thread.
	WorkerCount int `hcl:"worker_count,optional"`

	// WatchRoots are the source directories the watch command observes.
	WatchRoots []string `hcl:"watch_roots,optional"`

	// RenderCommand and CombineCommand are the exec backend's command
	// templates.
	RenderCommand  string `hcl:"render_command,optional"`
	CombineCommand string `hcl:"combine_command,optional"`

	// Presets are additional quality presets registered at startup.
	Presets []PresetConfig `hcl:"quality_preset,block"`
}

// PresetConfig is one quality_preset block.
type PresetConfig struct {
	Name   string `hcl:"name,label"`
	Tag    string `hcl:"tag"`
	FPS    int    `hcl:"fps"`
	Height int    `hcl:"height"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		OutputRoot:     "media",
		ArtifactExt:    "mp4",
		Backend:        "mock",
		DefaultQuality: "medium",
	}
}

// Load reads and decodes the given config file. A missing file is not an
// error: the defaults come back instead, since the config file is entirely
// optional.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultFilename
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	config := Default()
	if err := hclsimple.DecodeFile(path, nil, &config); err != nil {
		return Config{}, fmt.Errorf("invalid engine configuration in %s: %w", path, err)
	}
	if err := config.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid engine configuration in %s: %w", path, err)
	}
	return config, nil
}

// Parse decodes configuration from a byte buffer, for tests and embedders.
// The filename only labels diagnostics and selects the HCL syntax.
func Parse(data []byte, filename string) (Config, error) {
	config := Default()
	if err := hclsimple.Decode(filename, data, nil, &config); err != nil {
		return Config{}, err
	}
	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) validate() error {
	if c.WorkerCount < 0 {
		return fmt.Errorf("worker_count must not be negative")
	}
	for _, preset := range c.Presets {
		setting := preset.Setting()
		if err := setting.Validate(); err != nil {
			return fmt.Errorf("quality_preset %q: %w", preset.Name, err)
		}
	}
	return nil
}

// Setting converts the block to a quality setting.
func (p PresetConfig) Setting() quality.Setting {
	return quality.Setting{Tag: p.Tag, FPS: p.FPS, Height: p.Height}
}

// RegisterPresets installs the config's extra presets into the given
// registry.
func (c Config) RegisterPresets(reg *quality.Registry) error {
	for _, preset := range c.Presets {
		if err := reg.Register(preset.Name, preset.Setting()); err != nil {
			return err
		}
	}
	return nil
}
