//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals lists the signals that cancel the run context, which
// makes the Group Scheduler leave its tick loop and return, so no further
// tasks are admitted; it does not exit or kill Task Supervisors still in
// flight. SIGTERM is how systemd and
// Kubernetes ask a process to stop.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
