package main

import (
	"context"
	"os/signal"
)

// signalContext returns a context cancelled on one of stopSignals or when
// the returned cancel func is called.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, stopSignals...)
}
