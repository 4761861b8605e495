// Package logs reads netkeeper run logs with tail semantics.
//
// Tail returns the last N lines of a log file plus an offset that later calls
// use to read only what was appended since, which is how `netkeeper logs
// --follow` streams a running daemon's output. Reads are line oriented and
// bounded in memory. A missing file is treated as empty rather than an error
// so followers keep polling while the daemon is still starting up, and an
// offset beyond the end of the file restarts from the top so a follow
// survives the per-run re-targeting of the netkeeper.log pointer.
package logs
