//go:build !windows

package main

import (
	"os"
	"syscall"
)

// stopSignals end a running simulation command.
var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
