//go:build windows

package main

import (
	"os"
)

// terminationSignals lists the signals that cancel the run context, which
// makes the Group Scheduler leave its tick loop and return, so no further
// tasks are admitted; it does not exit or kill Task Supervisors still in
// flight. Windows has no SIGTERM; Ctrl+C
// (os.Interrupt) is the only signal worth listening for here.
var terminationSignals = []os.Signal{os.Interrupt}
