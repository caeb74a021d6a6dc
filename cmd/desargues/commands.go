// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/xlab/treeprint"

	"github.com/desargues/desargues/internal/scenegraph/dot"
	"github.com/desargues/desargues/internal/schedule"
	"github.com/desargues/desargues/internal/segment"
	"github.com/desargues/desargues/internal/session"
)

// interruptibleContext returns a context cancelled by the first interrupt
// signal, so an in-flight run winds down instead of being killed.
func interruptibleContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// RenderCommand renders out-of-date segments: all of them, or the ones
// named as arguments together with their out-of-date ancestors.
type RenderCommand struct {
	Meta *Meta
}

func (c *RenderCommand) Synopsis() string {
	return "Render segments whose content changed"
}

func (c *RenderCommand) Help() string {
	return strings.TrimSpace(`
Usage: desargues render [options] [segment-id ...]

  Renders every segment that is out of date, or only the named segments
  (plus whatever out-of-date segments they are built on).

Options:

  -quality=name   Quality preset: low, medium, high, or one configured in
                  desargues.hcl. Defaults to the configured default.
  -workers=n      Size of the render worker pool.
  -sequential     Render one segment at a time instead of in dependency
                  waves.
  -all            Mark every segment dirty first, forcing a full re-render.
  -estimate       Print a run-time projection instead of rendering.
`)
}

func (c *RenderCommand) Run(args []string) int {
	flags := flag.NewFlagSet("render", flag.ContinueOnError)
	flags.Usage = func() { c.Meta.Ui.Error(c.Help()) }
	qualityName := flags.String("quality", "", "quality preset")
	workers := flags.Int("workers", 0, "worker pool size")
	sequential := flags.Bool("sequential", false, "disable wave parallelism")
	all := flags.Bool("all", false, "re-render everything")
	estimate := flags.Bool("estimate", false, "print an estimate only")
	if err := flags.Parse(args); err != nil {
		return exitError
	}

	if err := installDemoGraph(c.Meta); err != nil {
		c.Meta.Ui.Error(err.Error())
		return exitCodeForError(err)
	}

	if *estimate {
		return c.printEstimate(*workers)
	}

	opts := session.Options{WorkerCount: *workers, Sequential: *sequential}
	if *qualityName != "" {
		opts.Quality = *qualityName
	}

	ctx, cancel := interruptibleContext()
	defer cancel()

	started := time.Now()
	var report *schedule.Report
	var err error
	switch {
	case *all:
		report, err = c.Meta.Session.RenderAll(ctx, opts)
	case flags.NArg() > 0:
		report = &schedule.Report{}
		for _, arg := range flags.Args() {
			var one *schedule.Report
			one, err = c.Meta.Session.Render(ctx, segment.ID(arg), opts)
			if err != nil {
				break
			}
			report.Rendered = append(report.Rendered, one.Rendered...)
			report.Errored = append(report.Errored, one.Errored...)
			report.Skipped = append(report.Skipped, one.Skipped...)
			report.Cancelled = report.Cancelled || one.Cancelled
		}
	default:
		report, err = c.Meta.Session.RenderDirty(ctx, opts)
	}
	if err != nil {
		c.Meta.Ui.Error(err.Error())
		return exitCodeForError(err)
	}

	c.Meta.Ui.Output(c.Meta.Colorize(fmt.Sprintf(
		"[green]Rendered %d[reset], errored %d, skipped %d in %s",
		len(report.Rendered), len(report.Errored), len(report.Skipped),
		time.Since(started).Round(time.Millisecond))))
	for _, id := range report.Errored {
		seg, _ := c.Meta.Session.Current().Get(id)
		c.Meta.Ui.Error(fmt.Sprintf("  %s: %s", id, seg.LastError()))
	}
	return reportExit(report)
}

func (c *RenderCommand) printEstimate(workers int) int {
	if workers < 1 {
		workers = c.Meta.Config.WorkerCount
	}
	if workers < 1 {
		workers = 1
	}
	est, err := schedule.EstimateRun(c.Meta.Session.Current(), 1.0, workers)
	if err != nil {
		c.Meta.Ui.Error(err.Error())
		return exitCodeForError(err)
	}
	c.Meta.Ui.Output(fmt.Sprintf(
		"Assuming one second per segment and %d workers:\n  sequential: %.0fs\n  parallel:   %.0fs (%.1fx)",
		workers, est.Sequential, est.Parallel, est.Speedup))
	return exitOK
}

// StatusCommand summarizes the current graph and shows its dependency
// structure as a tree.
type StatusCommand struct {
	Meta *Meta
}

func (c *StatusCommand) Synopsis() string {
	return "Show segment states and the dependency tree"
}

func (c *StatusCommand) Help() string {
	return strings.TrimSpace(`
Usage: desargues status

  Prints per-segment cache states and an overall summary.
`)
}

func (c *StatusCommand) Run(args []string) int {
	if err := installDemoGraph(c.Meta); err != nil {
		c.Meta.Ui.Error(err.Error())
		return exitCodeForError(err)
	}
	g := c.Meta.Session.Current()

	tree := treeprint.NewWithRoot("scene")
	branches := map[segment.ID]treeprint.Tree{}
	for _, s := range g.AllSegments() {
		label := fmt.Sprintf("%s [%s] %s", s.ID(), s.State(), s.ContentHash())
		if s.Independent() {
			branches[s.ID()] = tree.AddBranch(label)
			continue
		}
		// Attach under the first dependency; remaining dependencies are
		// cross-links the tree shape cannot show.
		parent := branches[s.Deps()[0]]
		if parent == nil {
			parent = tree
		}
		branches[s.ID()] = parent.AddBranch(label)
	}
	c.Meta.Ui.Output(tree.String())
	c.Meta.Ui.Output(g.Stats().String())
	return exitOK
}

// GraphCommand prints the scene graph in Graphviz language.
type GraphCommand struct {
	Meta *Meta
}

func (c *GraphCommand) Synopsis() string {
	return "Print the scene graph in DOT format"
}

func (c *GraphCommand) Help() string {
	return strings.TrimSpace(`
Usage: desargues graph

  Prints the scene graph in Graphviz language. Pipe through "dot -Tsvg"
  to draw it.
`)
}

func (c *GraphCommand) Run(args []string) int {
	if err := installDemoGraph(c.Meta); err != nil {
		c.Meta.Ui.Error(err.Error())
		return exitCodeForError(err)
	}
	var buf strings.Builder
	if err := dot.WriteGraph(c.Meta.Session.Current(), &buf); err != nil {
		c.Meta.Ui.Error(err.Error())
		return exitError
	}
	c.Meta.Ui.Output(buf.String())
	return exitOK
}

// CombineCommand concatenates cached artifacts into one output file.
type CombineCommand struct {
	Meta *Meta
}

func (c *CombineCommand) Synopsis() string {
	return "Concatenate cached segments into one video"
}

func (c *CombineCommand) Help() string {
	return strings.TrimSpace(`
Usage: desargues combine [options] [segment-id ...]

  Concatenates cached segment artifacts into a single output, in
  topological order, or in the argument order when segment ids are given.
  Every selected segment must be cached; render first.

Options:

  -out=name   Output file name, resolved under the output directory
              unless absolute. Defaults to final.mp4.
`)
}

func (c *CombineCommand) Run(args []string) int {
	flags := flag.NewFlagSet("combine", flag.ContinueOnError)
	flags.Usage = func() { c.Meta.Ui.Error(c.Help()) }
	out := flags.String("out", "final.mp4", "output name")
	if err := flags.Parse(args); err != nil {
		return exitError
	}

	if err := installDemoGraph(c.Meta); err != nil {
		c.Meta.Ui.Error(err.Error())
		return exitCodeForError(err)
	}

	var order []segment.ID
	for _, arg := range flags.Args() {
		order = append(order, segment.ID(arg))
	}

	ctx, cancel := interruptibleContext()
	defer cancel()
	path, err := c.Meta.Session.Combine(ctx, *out, order)
	if err != nil {
		c.Meta.Ui.Error(err.Error())
		return exitCodeForError(err)
	}
	c.Meta.Ui.Output(c.Meta.Colorize(fmt.Sprintf("[green]Combined into %s", path)))
	return exitOK
}

// ExportCommand renders whatever is out of date and combines in one step.
type ExportCommand struct {
	Meta *Meta
}

func (c *ExportCommand) Synopsis() string {
	return "Render out-of-date segments and combine"
}

func (c *ExportCommand) Help() string {
	return strings.TrimSpace(`
Usage: desargues export [options]

  Renders every out-of-date segment and concatenates the full scene into
  one output file.

Options:

  -out=name       Output file name. Defaults to final.mp4.
  -quality=name   Quality preset.
  -workers=n      Size of the render worker pool.
`)
}

func (c *ExportCommand) Run(args []string) int {
	flags := flag.NewFlagSet("export", flag.ContinueOnError)
	flags.Usage = func() { c.Meta.Ui.Error(c.Help()) }
	out := flags.String("out", "final.mp4", "output name")
	qualityName := flags.String("quality", "", "quality preset")
	workers := flags.Int("workers", 0, "worker pool size")
	if err := flags.Parse(args); err != nil {
		return exitError
	}

	if err := installDemoGraph(c.Meta); err != nil {
		c.Meta.Ui.Error(err.Error())
		return exitCodeForError(err)
	}

	opts := session.Options{WorkerCount: *workers}
	if *qualityName != "" {
		opts.Quality = *qualityName
	}

	ctx, cancel := interruptibleContext()
	defer cancel()
	path, report, err := c.Meta.Session.Export(ctx, *out, opts)
	if err != nil {
		c.Meta.Ui.Error(err.Error())
		if report != nil && report.Cancelled {
			return exitCancelled
		}
		return exitCodeForError(err)
	}
	c.Meta.Ui.Output(c.Meta.Colorize(fmt.Sprintf(
		"[green]Exported %s[reset] (%d segments rendered)", path, len(report.Rendered))))
	return exitOK
}

// WatchCommand runs the live-reload loop: watch sources, invalidate, and
// re-render until interrupted.
type WatchCommand struct {
	Meta *Meta
}

func (c *WatchCommand) Synopsis() string {
	return "Watch sources and re-render on change"
}

func (c *WatchCommand) Help() string {
	return strings.TrimSpace(`
Usage: desargues watch [dir ...]

  Watches the given source directories (or the configured watch_roots)
  and re-renders affected segments whenever a source unit changes. Runs
  until interrupted.
`)
}

func (c *WatchCommand) Run(args []string) int {
	roots := args
	if len(roots) == 0 {
		roots = c.Meta.Config.WatchRoots
	}
	if len(roots) == 0 {
		c.Meta.Ui.Error("No directories to watch: pass them as arguments or set watch_roots in desargues.hcl.")
		return exitError
	}

	if err := installDemoGraph(c.Meta); err != nil {
		c.Meta.Ui.Error(err.Error())
		return exitCodeForError(err)
	}

	// Bring the scene up to date before going quiet.
	ctx, cancel := interruptibleContext()
	defer cancel()
	if _, err := c.Meta.Session.RenderDirty(ctx, session.Options{}); err != nil {
		c.Meta.Ui.Error(err.Error())
		return exitCodeForError(err)
	}

	w, err := c.Meta.Session.Watch(roots, nil)
	if err != nil {
		c.Meta.Ui.Error(err.Error())
		return exitError
	}
	defer c.Meta.Session.Unwatch()

	c.Meta.Ui.Output(fmt.Sprintf("Watching %s for changes; interrupt to stop.", strings.Join(w.Roots(), ", ")))
	<-ctx.Done()

	changes, last := w.Stats()
	if changes > 0 {
		c.Meta.Ui.Output(fmt.Sprintf("Processed %d changes; last at %s.", changes, last.Format(time.Kitchen)))
	}
	return exitOK
}
