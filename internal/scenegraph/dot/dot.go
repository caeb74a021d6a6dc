// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package dot generates Graphviz-language representations of a scene graph,
// for inspecting how segments depend on one another and which of them are
// awaiting a render.
package dot

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"slices"

	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/segment"
)

// stateColors maps each segment state to a fill color, so that a rendered
// graph shows the cache situation at a glance.
var stateColors = map[segment.State]string{
	segment.StatePending:   "white",
	segment.StateRendering: "lightblue",
	segment.StateCached:    "palegreen",
	segment.StateDirty:     "khaki",
	segment.StateError:     "lightcoral",
}

// WriteGraph generates a Graphviz-language representation of the given scene
// graph on the given writer.
//
// Nodes are written in lexical order and edges in (source, target) lexical
// order so that the output is deterministic for easier unit testing. Each
// edge points from a segment to one of its dependents, matching the
// direction in which renders flow.
//
// If this function returns an error then an unspecified amount of partial
// data might already have been written.
func WriteGraph(g *scenegraph.Graph, w io.Writer) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString("digraph {\n  rankdir=\"LR\";\n  node [shape=box,style=filled];\n"); err != nil {
		return err
	}

	ids := g.IDs()
	slices.Sort(ids)
	for _, id := range ids {
		s, _ := g.Get(id)
		// The label is prequoted rather than passed through quoteForGraphviz
		// because it relies on Graphviz's own \n escape, which has no Go
		// equivalent. Segment ids and hashes cannot contain quoting
		// metacharacters, so verbatim insertion is safe.
		label := fmt.Sprintf("\"%s\\n%s\"", id, s.ContentHash())
		_, err := fmt.Fprintf(bw, "  %s [label=%s,fillcolor=%s];\n",
			quoteForGraphviz(string(id)),
			label,
			quoteForGraphviz(stateColors[s.State()]),
		)
		if err != nil {
			return err
		}
	}

	type edge struct {
		from, to segment.ID
	}
	var edges []edge
	for _, id := range ids {
		s, _ := g.Get(id)
		for _, dep := range s.Deps() {
			edges = append(edges, edge{from: dep, to: id})
		}
	}
	slices.SortFunc(edges, func(a, b edge) int {
		if a.from != b.from {
			return strings.Compare(string(a.from), string(b.from))
		}
		return strings.Compare(string(a.to), string(b.to))
	})
	for _, e := range edges {
		_, err := fmt.Fprintf(bw, "  %s -> %s;\n",
			quoteForGraphviz(string(e.from)), quoteForGraphviz(string(e.to)))
		if err != nil {
			return err
		}
	}

	if _, err := bw.WriteString("}\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// bareIDPattern matches strings that are valid unquoted Graphviz IDs, which
// can therefore be written without quoting.
var bareIDPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteForGraphviz(s string) string {
	if bareIDPattern.MatchString(s) {
		return s
	}
	var buf strings.Builder
	buf.WriteByte('"')
	for _, c := range s {
		switch c {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteRune(c)
		default:
			buf.WriteRune(c)
		}
	}
	buf.WriteByte('"')
	return buf.String()
}
