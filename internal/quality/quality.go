// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package quality defines render quality settings and a registry of named
// presets.
package quality

import (
	"fmt"
	"sync"

	"slices"
)

// Setting fully describes a render quality: the tag passed through to the
// backend, the frame rate, and the output height in pixels.
type Setting struct {
	Tag    string
	FPS    int
	Height int
}

// Validate checks the setting's invariants.
func (s Setting) Validate() error {
	if s.Tag == "" {
		return fmt.Errorf("quality setting must have a tag")
	}
	if s.FPS <= 0 {
		return fmt.Errorf("quality setting %q must have a positive frame rate", s.Tag)
	}
	if s.Height <= 0 {
		return fmt.Errorf("quality setting %q must have a positive height", s.Tag)
	}
	return nil
}

func (s Setting) String() string {
	return fmt.Sprintf("%s (%d fps, %dp)", s.Tag, s.FPS, s.Height)
}

// UnknownPresetError indicates a quality resolution against a preset name
// that nobody registered.
type UnknownPresetError struct {
	Name string
}

func (e *UnknownPresetError) Error() string {
	return fmt.Sprintf("no quality preset named %q is registered", e.Name)
}

// Registry holds named quality presets. The zero value is not usable; use
// [NewRegistry], which seeds the three standard presets.
type Registry struct {
	mu      sync.RWMutex
	presets map[string]Setting
}

// NewRegistry returns a registry pre-seeded with the standard presets:
// low (15 fps, 480p), medium (30 fps, 720p), and high (60 fps, 1080p).
func NewRegistry() *Registry {
	return &Registry{
		presets: map[string]Setting{
			"low":    {Tag: "low_quality", FPS: 15, Height: 480},
			"medium": {Tag: "medium_quality", FPS: 30, Height: 720},
			"high":   {Tag: "high_quality", FPS: 60, Height: 1080},
		},
	}
}

// Register adds or replaces a named preset.
func (r *Registry) Register(name string, setting Setting) error {
	if name == "" {
		return fmt.Errorf("quality preset name must not be empty")
	}
	if err := setting.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presets[name] = setting
	return nil
}

// Resolve turns a caller-supplied quality into a concrete [Setting]. The
// input may be a preset name (string), a literal Setting (validated and
// passed through), or nil, which resolves to the "medium" preset.
func (r *Registry) Resolve(input any) (Setting, error) {
	switch input := input.(type) {
	case nil:
		return r.lookup("medium")
	case string:
		return r.lookup(input)
	case Setting:
		if err := input.Validate(); err != nil {
			return Setting{}, err
		}
		return input, nil
	default:
		return Setting{}, fmt.Errorf("cannot resolve %T as a quality setting; want a preset name or a quality.Setting", input)
	}
}

func (r *Registry) lookup(name string) (Setting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	setting, ok := r.presets[name]
	if !ok {
		return Setting{}, &UnknownPresetError{Name: name}
	}
	return setting, nil
}

// Names returns the registered preset names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]string, 0, len(r.presets))
	for name := range r.presets {
		ret = append(ret, name)
	}
	slices.Sort(ret)
	return ret
}
