// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"fmt"
	"os"
	"runtime/debug"
)

const panicOutput = `
!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!

The process crashed! This is always indicative of a bug within the engine.
Please report the panic below, including the stack trace.

!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!
`

// PanicHandler is called to recover from an internal panic in the CLI, and
// augments the standard stack trace with a more user-friendly error message.
// PanicHandler must be called as a deferred function at the top of the
// process entrypoint.
func PanicHandler() {
	recovered := recover()
	if recovered == nil {
		return
	}

	fmt.Fprint(os.Stderr, panicOutput)
	fmt.Fprintf(os.Stderr, "%v\n\n", recovered)
	os.Stderr.Write(debug.Stack())

	// An exit code of 11 keeps us out of the way of the process exit
	// codes with conventional meanings, including our own documented ones.
	os.Exit(11)
}
