// Package recovery drives the reconnect sequence after a breached tick:
// reboot the LTE modem, wait for connectivity to return, then restart
// the configured units. Each run is journaled as an incident.
//
// Reboots are budgeted over a sliding window so a dead uplink cannot
// power-cycle the modem in a loop; when the budget is spent the runner
// still polls for connectivity and restarts units, it just skips the
// reboot itself.
package recovery
