//go:build !windows

package mcp

import (
	"os"
	"syscall"
)

// shutdownSignals stop a stdio session.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
