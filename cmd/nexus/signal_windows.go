//go:build windows

package main

import "os"

// stopSignals end a running simulation command. Only Ctrl+C is delivered on
// Windows.
var stopSignals = []os.Signal{os.Interrupt}
