// Package obslog is the module-wide structured logging seam.
//
// It mirrors eventloop's package-level SetStructuredLogger/getGlobalLogger
// pattern (logging is an infrastructure cross-cutting concern, shared by
// every subsystem, configured once at process start) but delegates to
// logiface instead of a hand-rolled Logger interface, so ev_q, ksched,
// vcore, alarm and uthread all emit through one configured sink rather
// than each wiring its own.
package obslog

import (
	"sync"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/logiface/stumpy"
)

var (
	mu     sync.RWMutex
	logger = logiface.New[*stumpy.Event](stumpy.WithStumpy())
)

// Configure replaces the package-wide logger. Called once during process
// start-up (e.g. from cmd/akademo), never from vcore context.
func Configure(opts ...logiface.Option[*stumpy.Event]) {
	mu.Lock()
	defer mu.Unlock()
	logger = logiface.New[*stumpy.Event](opts...)
}

// L returns the current shared logger.
func L() *logiface.Logger[*stumpy.Event] {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Info starts an info-level chained log entry, or a no-op builder if info
// logging is disabled.
func Info() *logiface.Builder[*stumpy.Event] { return L().Info() }

// Warning starts a warning-level chained log entry.
func Warning() *logiface.Builder[*stumpy.Event] { return L().Warning() }

// Err starts an error-level chained log entry.
func Err() *logiface.Builder[*stumpy.Event] { return L().Err() }

// Debug starts a debug-level chained log entry.
func Debug() *logiface.Builder[*stumpy.Event] { return L().Debug() }
