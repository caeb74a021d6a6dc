// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"errors"

	"github.com/mitchellh/cli"
	"github.com/mitchellh/colorstring"

	"github.com/desargues/desargues/internal/backend"
	"github.com/desargues/desargues/internal/combine"
	"github.com/desargues/desargues/internal/engineconfig"
	"github.com/desargues/desargues/internal/scenegraph"
	"github.com/desargues/desargues/internal/schedule"
	"github.com/desargues/desargues/internal/session"
)

// Meta carries the dependencies shared by every command.
type Meta struct {
	Ui      cli.Ui
	Session *session.Session
	Config  engineconfig.Config
	color   *colorstring.Colorize
}

// Colorize renders colorstring markup for terminal output.
func (m *Meta) Colorize(s string) string {
	return m.color.Color(s)
}

// exitCodeForError maps engine errors to the CLI's documented exit codes.
func exitCodeForError(err error) int {
	var cycleErr *scenegraph.CycleError
	if errors.As(err, &cycleErr) {
		return exitCycle
	}
	var missingErr *scenegraph.MissingDepsError
	if errors.As(err, &missingErr) {
		return exitMissingDep
	}
	var unsatErr *schedule.UnsatisfiedDependencyError
	if errors.As(err, &unsatErr) {
		return exitMissingDep
	}
	var combineErr *backend.CombineError
	if errors.As(err, &combineErr) {
		return exitCombineFailed
	}
	var notCachedErr *combine.NotCachedError
	if errors.As(err, &notCachedErr) {
		return exitCombineFailed
	}
	return exitError
}

// reportExit folds a run report into an exit code: cancellation has its own
// code, and any errored or skipped segment means the run didn't fully
// succeed.
func reportExit(report *schedule.Report) int {
	switch {
	case report.Cancelled:
		return exitCancelled
	case len(report.Errored) > 0 || len(report.Skipped) > 0:
		return exitError
	default:
		return exitOK
	}
}
