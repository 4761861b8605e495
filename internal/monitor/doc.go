// Package monitor owns the watchdog tick loop: probe the configured
// targets, compute the failure percentage, and hand breached ticks to
// the recovery runner. The latest tick outcome is kept as an in-memory
// snapshot for status queries, and every tick is appended to the
// journal.
//
// Shutdown is honored between ticks. A tick in flight finishes on its
// own probe timeouts; only the recovery phase observes cancellation so
// a stuck wait loop cannot hold the daemon open.
package monitor
