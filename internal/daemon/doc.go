// Package daemon coordinates the watchdog runtime and enforces
// single-instance execution.
//
// Daemon owns the process lock, spawns the monitor loop and the optional
// link monitor, and exposes the query surface (status, history, test
// notification) the IPC layer serves to the CLI.
package daemon
