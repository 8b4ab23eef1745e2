//go:build windows

package main

import (
	"os"
)

// terminationSignals are the signals that stop the matching service
// gracefully. Windows only delivers os.Interrupt (Ctrl+C).
var terminationSignals = []os.Signal{os.Interrupt}
