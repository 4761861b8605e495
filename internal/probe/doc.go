// Package probe checks the reachability of configured targets.
//
// A NetProber performs the per-target check: bare hosts and host:port pairs
// are TCP-dialed, http(s) URLs are fetched. The Pool fans one goroutine out
// per target with bounded retries and collects results in configuration
// order, which the monitor folds into a tick outcome.
package probe
