//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals are the signals that stop the matching service
// gracefully: in-flight match requests finish and the stores close cleanly.
// SIGTERM covers systemd and kubernetes shutdown.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
