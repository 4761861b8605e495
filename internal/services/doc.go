// Package services defines the failure taxonomy shared by every netkeeper
// component.
//
// Key responsibilities:
//   - Structured error markers (configuration, probe, modem control, service
//     restart) plus the Wrap helper that tags failures for classification.
//   - Helpers that decide whether a failure is fatal at startup or survivable
//     inside the watchdog loop, and that label error chains for logs and
//     journal rows.
//
// Use these markers when wiring new components so operational behaviour
// (error handling, observability, retries) stays uniform across the daemon.
package services
