// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package quality

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolve(t *testing.T) {
	reg := NewRegistry()

	t.Run("standard presets", func(t *testing.T) {
		tests := map[string]Setting{
			"low":    {Tag: "low_quality", FPS: 15, Height: 480},
			"medium": {Tag: "medium_quality", FPS: 30, Height: 720},
			"high":   {Tag: "high_quality", FPS: 60, Height: 1080},
		}
		for name, want := range tests {
			got, err := reg.Resolve(name)
			if err != nil {
				t.Fatalf("%s: %s", name, err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("wrong setting for %s\n%s", name, diff)
			}
		}
	})

	t.Run("literal passthrough", func(t *testing.T) {
		in := Setting{Tag: "draft", FPS: 5, Height: 240}
		got, err := reg.Resolve(in)
		if err != nil {
			t.Fatal(err)
		}
		if got != in {
			t.Fatalf("literal setting was not passed through: %v", got)
		}
	})

	t.Run("nil defaults to medium", func(t *testing.T) {
		got, err := reg.Resolve(nil)
		if err != nil {
			t.Fatal(err)
		}
		if got.Tag != "medium_quality" {
			t.Fatalf("nil resolved to %v; want the medium preset", got)
		}
	})

	t.Run("unknown preset", func(t *testing.T) {
		_, err := reg.Resolve("ultra")
		var unknownErr *UnknownPresetError
		if !errors.As(err, &unknownErr) {
			t.Fatalf("want UnknownPresetError; got %v", err)
		}
		if unknownErr.Name != "ultra" {
			t.Fatalf("error names preset %q; want %q", unknownErr.Name, "ultra")
		}
	})

	t.Run("invalid literal", func(t *testing.T) {
		if _, err := reg.Resolve(Setting{Tag: "bad", FPS: 0, Height: 480}); err == nil {
			t.Fatal("zero-fps literal accepted")
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		if _, err := reg.Resolve(42); err == nil {
			t.Fatal("integer input accepted")
		}
	})
}

func TestRegister(t *testing.T) {
	reg := NewRegistry()
	custom := Setting{Tag: "preview_quality", FPS: 10, Height: 360}
	if err := reg.Register("preview", custom); err != nil {
		t.Fatal(err)
	}
	got, err := reg.Resolve("preview")
	if err != nil {
		t.Fatal(err)
	}
	if got != custom {
		t.Fatalf("resolved %v; want %v", got, custom)
	}

	if err := reg.Register("", custom); err == nil {
		t.Fatal("empty preset name accepted")
	}
	if err := reg.Register("bad", Setting{}); err == nil {
		t.Fatal("invalid setting accepted")
	}

	want := []string{"high", "low", "medium", "preview"}
	if diff := cmp.Diff(want, reg.Names()); diff != "" {
		t.Fatalf("wrong names\n%s", diff)
	}
}
