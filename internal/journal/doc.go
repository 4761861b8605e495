// Package journal persists tick and incident history in SQLite.
//
// The Store records one row per monitoring tick and one per recovery
// incident, joined by tick sequence. History feeds the status and
// history queries plus the reboot holdoff window; it is bounded by
// PruneBefore rather than kept forever. Journal failures are reported
// to callers but are never a reason to stop the monitoring loop.
package journal
