// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Command desargues is the CLI wrapper around the incremental rendering
// engine: it builds the demo scene graph, renders whatever is out of date,
// watches sources for live reload, and combines cached segments into a
// final video.
package main

import (
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/mitchellh/cli"
	"github.com/mitchellh/colorstring"

	"github.com/desargues/desargues/internal/backend"
	"github.com/desargues/desargues/internal/backend/execbackend"
	"github.com/desargues/desargues/internal/backend/mockbackend"
	"github.com/desargues/desargues/internal/engineconfig"
	"github.com/desargues/desargues/internal/logging"
	"github.com/desargues/desargues/internal/session"

	"github.com/spf13/afero"
)

// Version is the semantic version of this build, set at link time for
// releases.
var Version = "0.9.0-dev"

// Ui is the cli.Ui used for communicating to the outside world.
var Ui cli.Ui

// Exit codes beyond the conventional 0/1, so scripts driving the CLI can
// distinguish the interesting failure classes.
const (
	exitOK            = 0
	exitError         = 1
	exitCycle         = 2
	exitMissingDep    = 3
	exitCombineFailed = 4
	exitCancelled     = 5
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	defer logging.PanicHandler()
	logging.Setup()

	Ui = &cli.ColoredUi{
		OutputColor: cli.UiColorNone,
		InfoColor:   cli.UiColorNone,
		ErrorColor:  cli.UiColorRed,
		WarnColor:   cli.UiColorYellow,
		Ui: &cli.BasicUi{
			Writer:      os.Stdout,
			ErrorWriter: os.Stderr,
			Reader:      os.Stdin,
		},
	}

	config, err := engineconfig.Load(os.Getenv("DESARGUES_CONFIG"))
	if err != nil {
		Ui.Error(err.Error())
		return exitError
	}
	log.Printf("[INFO] desargues version %s on %s", Version, runtime.Version())

	registerBackends(config)
	sess := session.New(session.Config{
		OutputRoot:     config.OutputRoot,
		ArtifactExt:    config.ArtifactExt,
		BackendTag:     config.Backend,
		FS:             afero.NewOsFs(),
		DefaultQuality: config.DefaultQuality,
		WorkerCount:    config.WorkerCount,
	})
	if err := config.RegisterPresets(sess.Quality()); err != nil {
		Ui.Error(err.Error())
		return exitError
	}

	meta := &Meta{
		Ui:      Ui,
		Session: sess,
		Config:  config,
		color:   &colorstring.Colorize{Colors: colorstring.DefaultColors},
	}

	c := cli.NewCLI("desargues", Version)
	c.Args = os.Args[1:]
	c.Commands = map[string]cli.CommandFactory{
		"render": func() (cli.Command, error) {
			return &RenderCommand{Meta: meta}, nil
		},
		"status": func() (cli.Command, error) {
			return &StatusCommand{Meta: meta}, nil
		},
		"graph": func() (cli.Command, error) {
			return &GraphCommand{Meta: meta}, nil
		},
		"combine": func() (cli.Command, error) {
			return &CombineCommand{Meta: meta}, nil
		},
		"export": func() (cli.Command, error) {
			return &ExportCommand{Meta: meta}, nil
		},
		"watch": func() (cli.Command, error) {
			return &WatchCommand{Meta: meta}, nil
		},
	}

	status, err := c.Run()
	if err != nil {
		Ui.Error(fmt.Sprintf("Error executing CLI: %s", err))
		return exitError
	}
	return status
}

// registerBackends installs the backends this build ships with. The mock
// backend is always present so the engine is drivable without a rendering
// toolchain; the exec backend joins when a render command is configured.
func registerBackends(config engineconfig.Config) {
	backend.Register(mockbackend.Tag, func() (backend.Backend, error) {
		return mockbackend.New(afero.NewOsFs()), nil
	})
	if config.RenderCommand != "" {
		backend.Register(execbackend.Tag, func() (backend.Backend, error) {
			return execbackend.New(execbackend.Config{
				RenderCommand:  config.RenderCommand,
				CombineCommand: config.CombineCommand,
			})
		})
	}
}
