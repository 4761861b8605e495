// Package notifications delivers watchdog events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Breach and recovery events carry consistent titles, tags, and
// priorities so subscribers can filter on them.
//
// Extend this package if you need alternative transports; the monitoring
// loop depends only on the simple Service interface.
package notifications
