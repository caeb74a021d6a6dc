// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package predicate

import (
	"testing"

	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/segment"
)

func testGraph(t *testing.T) *scenegraph.Graph {
	t.Helper()
	g := scenegraph.Empty(nil)
	for _, spec := range []struct {
		id   segment.ID
		deps []segment.ID
		meta map[string]string
	}{
		{"scene.intro", nil, map[string]string{"act": "1"}},
		{"scene.body", []segment.ID{"scene.intro"}, map[string]string{"act": "1", "quality": "high"}},
		{"scene.outro", []segment.ID{"scene.body"}, map[string]string{"act": "2"}},
		{"titlecard", nil, nil},
	} {
		s, err := segment.New(spec.id, segment.Construct{Tag: string(spec.id) + "-v1"}, spec.deps, spec.meta)
		if err != nil {
			t.Fatal(err)
		}
		g, err = g.Add(s)
		if err != nil {
			t.Fatal(err)
		}
	}
	return g
}

func idsOf(segs []segment.Segment) []string {
	ret := make([]string, len(segs))
	for i, s := range segs {
		ret[i] = string(s.ID())
	}
	return ret
}

func TestAtoms(t *testing.T) {
	g := testGraph(t)

	idMatches, err := IDMatches(`^scene\.`)
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]struct {
		pred Predicate
		want int
	}{
		"HasState pending":       {HasState(segment.StatePending), 4},
		"HasState cached":        {HasState(segment.StateCached), 0},
		"HasID":                  {HasID("titlecard"), 1},
		"DependsOn intro":        {DependsOn("scene.intro"), 1},
		"Independent":            {Independent(), 2},
		"HasMetadata act":        {HasMetadata("act"), 3},
		"MetadataEquals act=1":   {MetadataEquals("act", "1"), 2},
		"MetadataEquals act=9":   {MetadataEquals("act", "9"), 0},
		"IDMatches scene prefix": {idMatches, 3},
		"Where": {Where(func(s segment.Segment) bool {
			return len(s.Deps()) == 1
		}), 2},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if got := Count(g, test.pred); got != test.want {
				t.Fatalf("matched %d segments (%v); want %d",
					got, idsOf(Find(g, test.pred)), test.want)
			}
		})
	}
}

func TestIDMatchesInvalidPattern(t *testing.T) {
	if _, err := IDMatches(`([`); err == nil {
		t.Fatal("invalid pattern accepted")
	}
}

func TestCombinators(t *testing.T) {
	g := testGraph(t)

	and := And(HasMetadata("act"), Independent())
	if got := idsOf(Find(g, and)); len(got) != 1 || got[0] != "scene.intro" {
		t.Errorf("And matched %v; want [scene.intro]", got)
	}

	or := Or(HasID("titlecard"), HasID("scene.outro"))
	if got := Count(g, or); got != 2 {
		t.Errorf("Or matched %d; want 2", got)
	}

	not := Not(HasMetadata("act"))
	if got := idsOf(Find(g, not)); len(got) != 1 || got[0] != "titlecard" {
		t.Errorf("Not matched %v; want [titlecard]", got)
	}

	if !All(g, Or(HasMetadata("act"), HasID("titlecard"))) {
		t.Error("All returned false for a predicate satisfied by every segment")
	}
	if Any(g, HasState(segment.StateError)) {
		t.Error("Any returned true for a predicate satisfied by no segment")
	}
}

func TestPartition(t *testing.T) {
	g := testGraph(t)
	matching, rest := Partition(g, Independent())
	if len(matching)+len(rest) != g.Count() {
		t.Fatalf("partition lost segments: %d + %d != %d", len(matching), len(rest), g.Count())
	}
	for _, s := range matching {
		if !s.Independent() {
			t.Errorf("segment %q in matching side but has deps", s.ID())
		}
	}
	for _, s := range rest {
		if s.Independent() {
			t.Errorf("segment %q in rest side but is independent", s.ID())
		}
	}
}
