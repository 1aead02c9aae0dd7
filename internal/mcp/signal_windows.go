//go:build windows

package mcp

import "os"

// shutdownSignals stop a stdio session. SIGTERM does not exist on Windows.
var shutdownSignals = []os.Signal{os.Interrupt}
