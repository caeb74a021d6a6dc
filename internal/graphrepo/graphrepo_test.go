// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package graphrepo

import (
	"testing"

	"slices"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/segment"
)

// testGraph builds a small graph with a cached segment, an errored segment,
// and a dirty one, to exercise every persisted state.
func testGraph(t *testing.T) (*scenegraph.Graph, map[segment.ID]segment.Construct) {
	t.Helper()

	constructs := map[segment.ID]segment.Construct{
		"intro": {Tag: "intro-v1"},
		"body":  {Tag: "body-v2"},
		"outro": {Tag: "outro-v1"},
	}

	var segs []segment.Segment
	for _, spec := range []struct {
		id   segment.ID
		deps []segment.ID
		meta map[string]string
	}{
		{"intro", nil, map[string]string{"duration": "3"}},
		{"body", []segment.ID{"intro"}, nil},
		{"outro", []segment.ID{"body"}, nil},
	} {
		s, err := segment.New(spec.id, constructs[spec.id], spec.deps, spec.meta)
		if err != nil {
			t.Fatal(err)
		}
		segs = append(segs, s)
	}
	g, err := scenegraph.Empty(map[string]string{"title": "demo scene"}).AddAll(segs)
	if err != nil {
		t.Fatal(err)
	}

	// intro: cached; body: errored; outro: stays pending.
	g, err = g.Update("intro", func(s segment.Segment) (segment.Segment, error) {
		rendering, err := s.MarkRendering()
		if err != nil {
			return segment.Segment{}, err
		}
		return rendering.MarkCached("/out/partial/intro_" + string(s.ContentHash()) + ".mp4")
	})
	if err != nil {
		t.Fatal(err)
	}
	g, err = g.Update("body", func(s segment.Segment) (segment.Segment, error) {
		rendering, err := s.MarkRendering()
		if err != nil {
			return segment.Segment{}, err
		}
		return rendering.MarkError(errsentinel{})
	})
	if err != nil {
		t.Fatal(err)
	}
	return g, constructs
}

type errsentinel struct{}

func (errsentinel) Error() string { return "construct raised" }

func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	fileRepo, err := NewFileRepository(afero.NewMemMapFs(), "/graphs")
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Repository{
		"file":   fileRepo,
		"memory": NewMemoryRepository(),
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			g, constructs := testGraph(t)
			if err := repo.Save("main", g); err != nil {
				t.Fatal(err)
			}

			loaded, err := repo.Load("main", constructs)
			if err != nil {
				t.Fatal(err)
			}
			if loaded == nil {
				t.Fatal("saved snapshot did not load")
			}

			if diff := cmp.Diff(g.Metadata(), loaded.Metadata()); diff != "" {
				t.Errorf("wrong graph metadata\n%s", diff)
			}
			if diff := cmp.Diff(g.RenderOrder(), loaded.RenderOrder()); diff != "" {
				t.Errorf("wrong render order\n%s", diff)
			}
			for _, want := range g.AllSegments() {
				got, ok := loaded.Get(want.ID())
				if !ok {
					t.Fatalf("segment %q missing after round trip", want.ID())
				}
				if got.ContentHash() != want.ContentHash() {
					t.Errorf("segment %q hash %s; want %s", want.ID(), got.ContentHash(), want.ContentHash())
				}
				if got.State() != want.State() {
					t.Errorf("segment %q state %s; want %s", want.ID(), got.State(), want.State())
				}
				if got.ArtifactPath() != want.ArtifactPath() {
					t.Errorf("segment %q artifact %q; want %q", want.ID(), got.ArtifactPath(), want.ArtifactPath())
				}
				if got.SourceUnit() != want.SourceUnit() {
					t.Errorf("segment %q source unit %q; want %q", want.ID(), got.SourceUnit(), want.SourceUnit())
				}
				if diff := cmp.Diff(want.Metadata(), got.Metadata()); diff != "" {
					t.Errorf("segment %q metadata\n%s", want.ID(), diff)
				}
				if got.Construct().Fn == nil && constructs[want.ID()].Fn != nil {
					t.Errorf("segment %q lost its construct callable", want.ID())
				}
			}
		})
	}
}

func TestRepositoryLoadMissingConstructs(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			g, constructs := testGraph(t)
			if err := repo.Save("main", g); err != nil {
				t.Fatal(err)
			}

			// Re-supply constructs for everything except the cached
			// segment: it must come back dirty with no artifact claim.
			delete(constructs, "intro")
			loaded, err := repo.Load("main", constructs)
			if err != nil {
				t.Fatal(err)
			}

			intro, _ := loaded.Get("intro")
			if intro.State() != segment.StateDirty {
				t.Fatalf("segment without construct in state %s; want dirty", intro.State())
			}
			if intro.ArtifactPath() != "" {
				t.Fatal("segment without construct still claims an artifact")
			}
			// Its hash is preserved, because the snapshot's construct tag
			// still stands in for the missing callable.
			want, _ := g.Get("intro")
			if intro.ContentHash() != want.ContentHash() {
				t.Fatalf("hash changed: %s; want %s", intro.ContentHash(), want.ContentHash())
			}
		})
	}
}

func TestRepositoryLoadChangedConstructTag(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			g, constructs := testGraph(t)
			if err := repo.Save("main", g); err != nil {
				t.Fatal(err)
			}

			// The caller re-supplies intro with new content: the load must
			// pick up the drift, dirty intro, and ripple the hash change to
			// its dependents.
			constructs["intro"] = segment.Construct{Tag: "intro-v2"}
			loaded, err := repo.Load("main", constructs)
			if err != nil {
				t.Fatal(err)
			}

			intro, _ := loaded.Get("intro")
			if intro.State() != segment.StateDirty {
				t.Fatalf("drifted segment in state %s; want dirty", intro.State())
			}
			wantIntro, _ := g.Get("intro")
			if intro.ContentHash() == wantIntro.ContentHash() {
				t.Fatal("drifted segment kept its old hash")
			}
			outro, _ := loaded.Get("outro")
			wantOutro, _ := g.Get("outro")
			if outro.ContentHash() == wantOutro.ContentHash() {
				t.Fatal("dependent hash did not ripple")
			}
		})
	}
}

func TestRepositoryMissingSnapshot(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			loaded, err := repo.Load("ghost", nil)
			if err != nil {
				t.Fatal(err)
			}
			if loaded != nil {
				t.Fatal("nonexistent snapshot loaded a graph")
			}
		})
	}
}

func TestRepositoryListExistsDelete(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			g, _ := testGraph(t)
			for _, id := range []string{"alpha", "beta"} {
				if err := repo.Save(id, g); err != nil {
					t.Fatal(err)
				}
			}

			ids, err := repo.List()
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(ids, []string{"alpha", "beta"}) {
				t.Fatalf("wrong list: %v", ids)
			}

			exists, err := repo.Exists("alpha")
			if err != nil || !exists {
				t.Fatalf("Exists(alpha) = %t, %v", exists, err)
			}

			deleted, err := repo.Delete("alpha")
			if err != nil || !deleted {
				t.Fatalf("Delete(alpha) = %t, %v", deleted, err)
			}
			deleted, err = repo.Delete("alpha")
			if err != nil || deleted {
				t.Fatalf("second Delete(alpha) = %t, %v", deleted, err)
			}

			exists, err = repo.Exists("alpha")
			if err != nil || exists {
				t.Fatalf("Exists(alpha) after delete = %t, %v", exists, err)
			}
		})
	}
}

func TestRepositoryRejectsBadIDs(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			g, _ := testGraph(t)
			for _, bad := range []string{"", "../escape", "a/b"} {
				if err := repo.Save(bad, g); err == nil {
					t.Errorf("Save accepted id %q", bad)
				}
			}
		})
	}
}
