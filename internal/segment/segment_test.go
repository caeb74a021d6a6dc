// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package segment

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func testConstruct(tag string) Construct {
	return Construct{
		Tag: tag,
		Fn:  func(ctx context.Context, scene SceneHandle) error { return nil },
	}
}

func TestNew(t *testing.T) {
	tests := map[string]struct {
		id        ID
		construct Construct
		deps      []ID
		metadata  map[string]string
		wantErr   string
	}{
		"minimal": {
			id:        "intro",
			construct: testConstruct("intro-v1"),
		},
		"with deps and metadata": {
			id:        "closing.titles",
			construct: testConstruct("titles-v1"),
			deps:      []ID{"intro", "body"},
			metadata:  map[string]string{"duration": "4.5"},
		},
		"empty id": {
			id:        "",
			construct: testConstruct("x"),
			wantErr:   `segment id must not be empty`,
		},
		"bad id shape": {
			id:        "no spaces allowed",
			construct: testConstruct("x"),
			wantErr:   `invalid segment id "no spaces allowed"`,
		},
		"leading punctuation": {
			id:        "-intro",
			construct: testConstruct("x"),
			wantErr:   `invalid segment id "-intro"`,
		},
		"missing construct tag": {
			id:        "intro",
			construct: Construct{},
			wantErr:   `invalid construct for segment "intro"`,
		},
		"self dependency": {
			id:        "intro",
			construct: testConstruct("x"),
			deps:      []ID{"intro"},
			wantErr:   `a segment cannot depend on itself`,
		},
		"duplicate dependency": {
			id:        "outro",
			construct: testConstruct("x"),
			deps:      []ID{"intro", "intro"},
			wantErr:   `dependency "intro" appears more than once`,
		},
		"invalid dependency id": {
			id:        "outro",
			construct: testConstruct("x"),
			deps:      []ID{"not valid"},
			wantErr:   `dependency id "not valid" is not a valid segment id`,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := New(test.id, test.construct, test.deps, test.metadata)
			if test.wantErr != "" {
				if err == nil {
					t.Fatalf("unexpected success; want error containing %q", test.wantErr)
				}
				if !strings.Contains(err.Error(), test.wantErr) {
					t.Fatalf("wrong error %q; want one containing %q", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if got.State() != StatePending {
				t.Errorf("new segment in state %s; want %s", got.State(), StatePending)
			}
			if got.ContentHash() == NilHash {
				t.Errorf("new segment has no content hash")
			}
			if _, err := ParseHash(string(got.ContentHash())); err != nil {
				t.Errorf("new segment hash is malformed: %s", err)
			}
			if got.ArtifactPath() != "" || got.LastError() != "" {
				t.Errorf("new segment carries artifact path or error detail")
			}
		})
	}
}

func TestSegmentTransitions(t *testing.T) {
	// Walks every pairing of (state, transition) and checks it against the
	// lifecycle: Pending|Dirty|Error can start rendering; Rendering resolves
	// to Cached or Error; a cached segment must pass through Dirty before it
	// can render again; MarkDirty and MarkPending are legal everywhere.
	inState := func(t *testing.T, state State) Segment {
		t.Helper()
		s, err := New("seg", testConstruct("v1"), nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		switch state {
		case StatePending:
			return s
		case StateDirty:
			return s.MarkDirty()
		case StateRendering:
			s, err = s.MarkRendering()
		case StateCached:
			if s, err = s.MarkRendering(); err == nil {
				s, err = s.MarkCached("/out/partial/seg_abc.mp4")
			}
		case StateError:
			if s, err = s.MarkRendering(); err == nil {
				s, err = s.MarkError(errors.New("boom"))
			}
		}
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	allStates := []State{StatePending, StateRendering, StateCached, StateDirty, StateError}

	t.Run("MarkRendering", func(t *testing.T) {
		allowedFrom := map[State]bool{StatePending: true, StateDirty: true, StateError: true}
		for _, from := range allStates {
			t.Run(from.String(), func(t *testing.T) {
				got, err := inState(t, from).MarkRendering()
				if allowedFrom[from] {
					if err != nil {
						t.Fatalf("unexpected error: %s", err)
					}
					if got.State() != StateRendering {
						t.Fatalf("state is %s; want rendering", got.State())
					}
					return
				}
				var transErr *IllegalTransitionError
				if !errors.As(err, &transErr) {
					t.Fatalf("want IllegalTransitionError; got %v", err)
				}
				if transErr.From != from || transErr.To != StateRendering {
					t.Fatalf("error describes %s -> %s; want %s -> rendering", transErr.From, transErr.To, from)
				}
			})
		}
	})

	t.Run("MarkCached", func(t *testing.T) {
		for _, from := range allStates {
			t.Run(from.String(), func(t *testing.T) {
				got, err := inState(t, from).MarkCached("/out/partial/seg_abc.mp4")
				if from == StateRendering {
					if err != nil {
						t.Fatalf("unexpected error: %s", err)
					}
					if got.State() != StateCached || got.ArtifactPath() == "" {
						t.Fatalf("cached segment not fully populated: %#v", got)
					}
					return
				}
				var transErr *IllegalTransitionError
				if !errors.As(err, &transErr) {
					t.Fatalf("want IllegalTransitionError; got %v", err)
				}
			})
		}
	})

	t.Run("MarkError", func(t *testing.T) {
		for _, from := range allStates {
			t.Run(from.String(), func(t *testing.T) {
				got, err := inState(t, from).MarkError(errors.New("render exploded"))
				if from == StateRendering {
					if err != nil {
						t.Fatalf("unexpected error: %s", err)
					}
					if got.State() != StateError {
						t.Fatalf("state is %s; want error", got.State())
					}
					if got.LastError() != "render exploded" {
						t.Fatalf("wrong error detail %q", got.LastError())
					}
					return
				}
				var transErr *IllegalTransitionError
				if !errors.As(err, &transErr) {
					t.Fatalf("want IllegalTransitionError; got %v", err)
				}
			})
		}
	})

	t.Run("MarkDirty", func(t *testing.T) {
		for _, from := range allStates {
			t.Run(from.String(), func(t *testing.T) {
				got := inState(t, from).MarkDirty()
				if got.State() != StateDirty {
					t.Fatalf("state is %s; want dirty", got.State())
				}
				if got.ArtifactPath() != "" {
					t.Fatalf("dirty segment still carries an artifact path")
				}
			})
		}
	})

	t.Run("MarkPending", func(t *testing.T) {
		for _, from := range allStates {
			t.Run(from.String(), func(t *testing.T) {
				got := inState(t, from).MarkPending()
				if got.State() != StatePending {
					t.Fatalf("state is %s; want pending", got.State())
				}
				if got.ArtifactPath() != "" || got.LastError() != "" {
					t.Fatalf("reset segment still carries artifact path or error detail")
				}
			})
		}
	})
}

func TestSegmentAdoptArtifact(t *testing.T) {
	s, err := New("seg", testConstruct("v1"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	adopted, err := s.AdoptArtifact("/out/partial/seg_abcabcabcabc.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if adopted.State() != StateCached || adopted.ArtifactPath() == "" {
		t.Fatalf("adoption did not cache the segment: %#v", adopted)
	}

	// A cached or rendering segment has nothing to adopt.
	if _, err := adopted.AdoptArtifact("/elsewhere.mp4"); err == nil {
		t.Fatal("cached segment adopted a second artifact")
	}
	rendering, err := s.MarkRendering()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rendering.AdoptArtifact("/elsewhere.mp4"); err == nil {
		t.Fatal("rendering segment adopted an artifact")
	}

	if _, err := s.AdoptArtifact(""); err == nil {
		t.Fatal("empty artifact path adopted")
	}
}

func TestSegmentNeedsRender(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StatePending, true},
		{StateDirty, true},
		{StateError, true},
		{StateRendering, false},
		{StateCached, false},
	}
	for _, test := range tests {
		if got := test.state.NeedsRender(); got != test.want {
			t.Errorf("%s.NeedsRender() = %t; want %t", test.state, got, test.want)
		}
	}
}

func TestSegmentIndependent(t *testing.T) {
	leaf, err := New("leaf", testConstruct("v1"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !leaf.Independent() {
		t.Error("segment with no deps reported as dependent")
	}
	child, err := New("child", testConstruct("v1"), []ID{"leaf"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if child.Independent() {
		t.Error("segment with deps reported as independent")
	}
}
