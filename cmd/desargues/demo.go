// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"

	"github.com/desargues/desargues/internal/backend/execbackend"
	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/segment"
	"github.com/desargues/desargues/internal/session"
)

// The CLI is a thin consumer of the engine: real scene graphs come from the
// math layer through the session API. The built-in demo scene below stands
// in for that layer so the binary is drivable end to end, and doubles as a
// worked example of declaring segments.
//
// It animates Desargues' theorem: two triangles in perspective from a
// point, with the intersections of corresponding sides shown collinear.

type demoSegment struct {
	id         segment.ID
	deps       []segment.ID
	sourceUnit string
	metadata   map[string]string
	directives []string
}

var demoSegments = []demoSegment{
	{
		id:         "title",
		sourceUnit: "title",
		metadata:   map[string]string{"duration": "3", "desc": "title card"},
		directives: []string{"text 'Desargues' Theorem'", "fade-in 1.0"},
	},
	{
		id:         "axes",
		sourceUnit: "stage",
		metadata:   map[string]string{"duration": "2"},
		directives: []string{"plane origin-centered", "grid off"},
	},
	{
		id:         "triangle.left",
		deps:       []segment.ID{"axes"},
		sourceUnit: "triangles",
		metadata:   map[string]string{"duration": "4"},
		directives: []string{"polygon A B C", "label-vertices"},
	},
	{
		id:         "triangle.right",
		deps:       []segment.ID{"axes"},
		sourceUnit: "triangles",
		metadata:   map[string]string{"duration": "4"},
		directives: []string{"polygon A' B' C'", "label-vertices"},
	},
	{
		id:         "perspective",
		deps:       []segment.ID{"triangle.left", "triangle.right"},
		sourceUnit: "perspective",
		metadata:   map[string]string{"duration": "5", "desc": "lines through the center of perspectivity"},
		directives: []string{"lines-through O AA' BB' CC'", "highlight O"},
	},
	{
		id:         "collinearity",
		deps:       []segment.ID{"perspective"},
		sourceUnit: "perspective",
		metadata:   map[string]string{"duration": "6", "desc": "the perspectrix"},
		directives: []string{"intersect AB A'B'", "intersect BC B'C'", "intersect CA C'A'", "line-through intersections"},
	},
	{
		id:         "credits",
		deps:       []segment.ID{"collinearity"},
		sourceUnit: "title",
		metadata:   map[string]string{"duration": "2"},
		directives: []string{"text 'rendered incrementally'", "fade-out 1.0"},
	},
}

// demoConstruct builds the construct for one demo segment. The directives
// double as the construct's content tag, so editing a directive list is
// what makes a segment (and its dependents) re-render.
func demoConstruct(spec demoSegment) segment.Construct {
	return segment.Construct{
		Tag: fmt.Sprintf("demo/%s@%v", spec.id, spec.directives),
		Fn: func(ctx context.Context, scene segment.SceneHandle) error {
			if execScene, ok := scene.(*execbackend.Scene); ok {
				for _, directive := range spec.directives {
					execScene.Emit(directive)
				}
			}
			return nil
		},
	}
}

// buildDemoGraph assembles the demo scene graph through the session API.
func buildDemoGraph(sess *session.Session) (*scenegraph.Graph, error) {
	var segs []segment.Segment
	for _, spec := range demoSegments {
		seg, err := sess.MakeSegment(spec.id, demoConstruct(spec), spec.deps, spec.metadata, spec.sourceUnit)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return sess.MakeGraph(segs, map[string]string{"title": "Desargues' theorem"})
}

// installDemoGraph makes the demo scene the session's current graph and
// adopts whatever valid artifacts previous invocations left on disk.
func installDemoGraph(m *Meta) error {
	g, err := buildDemoGraph(m.Session)
	if err != nil {
		return err
	}
	m.Session.UseGraph(g)
	return m.Session.ReconcileArtifacts()
}
