// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// These are the environmental variables that determine if we log, and if
// we log whether or not the log should go to a file.
const (
	envLog     = "DEVX_LOG"
	envLogFile = "DEVX_LOG_PATH"
)

var (
	// validLevels are the log level names that we recognize in the
	// environment variables above, in order of decreasing verbosity.
	validLevels = []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "OFF"}

	// logger is the global hclog logger
	logger hclog.Logger

	// logWriter is a global writer for logs, to be used with the std log package
	logWriter io.Writer

	setupOnce sync.Once
)

// Setup initializes the global logging infrastructure from the environment.
// It is safe to call more than once; only the first call has any effect.
//
// All engine packages log through the standard library "log" package with a
// level prefix in square brackets, e.g. log.Printf("[TRACE] ..."), and the
// hclog layer installed here infers levels from those prefixes so that
// DEVX_LOG filtering applies uniformly.
func Setup() {
	setupOnce.Do(func() {
		logger = newHCLogger("devx")
		logWriter = logger.StandardWriter(&hclog.StandardLoggerOptions{
			InferLevels: true,
		})

		// set up the default std library logger to use our output
		log.SetFlags(0)
		log.SetPrefix("")
		log.SetOutput(logWriter)
	})
}

// HCLogger returns the default global hclog logger, for callers that want
// structured key/value logging rather than the printf style.
func HCLogger() hclog.Logger {
	Setup()
	return logger
}

// LogWriter returns the destination that the engine's log output is being
// written to, for wiring into subprocesses.
func LogWriter() io.Writer {
	Setup()
	return logWriter
}

func newHCLogger(name string) hclog.Logger {
	logOutput := io.Writer(os.Stderr)

	if logPath := os.Getenv(envLogFile); logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0666)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		} else {
			logOutput = f
		}
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:              name,
		Level:             globalLogLevel(),
		Output:            logOutput,
		IndependentLevels: true,
	})
}

// globalLogLevel maps the DEVX_LOG environment variable to an hclog level.
// An empty value disables logging entirely, matching the behavior users
// expect from an unset log env var; an unrecognized value selects TRACE.
func globalLogLevel() hclog.Level {
	envLevel := strings.ToUpper(os.Getenv(envLog))
	if envLevel == "" {
		return hclog.Off
	}

	// The practical default for a nonsense value is TRACE, because someone
	// setting DEVX_LOG=1 or similar clearly wanted logs.
	level := hclog.Trace
	for _, l := range validLevels {
		if l == envLevel {
			level = hclog.LevelFromString(envLevel)
			if envLevel == "OFF" {
				level = hclog.Off
			}
		}
	}
	return level
}

// IsDebugOrHigher returns true if the current log verbosity includes DEBUG
// output, for callers that want to skip building expensive log arguments.
func IsDebugOrHigher() bool {
	Setup()
	return logger.IsDebug() || logger.IsTrace()
}
