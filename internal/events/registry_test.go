// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package events

import (
	"testing"
	"time"
)

func TestRegistryEmit(t *testing.T) {
	reg := NewRegistry()

	var got []Envelope
	reg.Register("collector", func(env Envelope) {
		got = append(got, env)
	}, nil)

	reg.Emit(RenderStarted{ID: "intro", Hash: "abcabcabcabc"})
	reg.Emit(RenderCompleted{ID: "intro", Hash: "abcabcabcabc", Path: "/out/partial/intro_abcabcabcabc.mp4"})

	if len(got) != 2 {
		t.Fatalf("handler received %d events; want 2", len(got))
	}
	if got[0].Event.EventKind() != KindRenderStarted {
		t.Errorf("first event kind is %s; want %s", got[0].Event.EventKind(), KindRenderStarted)
	}
	if got[0].ID == "" || got[0].Time.IsZero() {
		t.Error("envelope missing id or timestamp")
	}
	if got[0].ID == got[1].ID {
		t.Error("distinct emissions share an envelope id")
	}
}

func TestRegistryFilter(t *testing.T) {
	reg := NewRegistry()

	var failures int
	reg.Register("failures-only", func(env Envelope) {
		failures++
	}, func(env Envelope) bool {
		return env.Event.EventKind() == KindRenderFailed
	})

	reg.Emit(RenderStarted{ID: "a", Hash: "aaaaaaaaaaaa"})
	reg.Emit(RenderFailed{ID: "a", Hash: "aaaaaaaaaaaa", Err: "boom"})
	reg.Emit(RenderCompleted{ID: "b", Hash: "bbbbbbbbbbbb"})

	if failures != 1 {
		t.Fatalf("filtered handler received %d events; want 1", failures)
	}
}

func TestRegistryPanicIsolation(t *testing.T) {
	reg := NewRegistry()

	reg.Register("bad", func(Envelope) {
		panic("observer exploded")
	}, nil)
	var delivered int
	reg.Register("good", func(Envelope) {
		delivered++
	}, nil)

	// Must not panic outward, and the well-behaved handler must still be
	// notified.
	reg.Emit(SegmentMarkedDirty{ID: "x"})
	if delivered != 1 {
		t.Fatalf("well-behaved handler received %d events; want 1", delivered)
	}
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewRegistry()
	var count int
	reg.Register("h", func(Envelope) { count++ }, nil)
	if !reg.Unregister("h") {
		t.Fatal("Unregister reported no handler present")
	}
	if reg.Unregister("h") {
		t.Fatal("second Unregister reported a handler present")
	}
	reg.Emit(SegmentMarkedDirty{ID: "x"})
	if count != 0 {
		t.Fatal("unregistered handler still received events")
	}
}

func TestRegistryEmitAt(t *testing.T) {
	reg := NewRegistry()
	var got Envelope
	reg.Register("h", func(env Envelope) { got = env }, nil)

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	reg.EmitAt(at, SourceChanged{Unit: "scenes.intro"})
	if !got.Time.Equal(at) {
		t.Fatalf("envelope time %v; want %v", got.Time, at)
	}
}
