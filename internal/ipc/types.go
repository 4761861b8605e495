package ipc

import (
	"time"

	"github.com/Salamek/netkeeper/internal/journal"
	"github.com/Salamek/netkeeper/internal/monitor"
	"github.com/Salamek/netkeeper/internal/probe"
)

// TickOutcome mirrors the monitor's tick snapshot for IPC callers.
type TickOutcome = monitor.TickOutcome

// ServiceRestart mirrors one unit restart attempt within an incident.
type ServiceRestart = journal.ServiceRestart

// PingRequest checks daemon liveness.
type PingRequest struct{}

// PingResponse carries the responding daemon's pid.
type PingResponse struct {
	PID int `json:"pid"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// LinkStatus reports the optional modem interface watch.
type LinkStatus struct {
	Interface string `json:"interface"`
	Active    bool   `json:"active"`
	Events    uint64 `json:"events"`
}

// DependencyStatus describes availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail"`
}

// StatusResponse represents daemon runtime information plus the latest tick.
type StatusResponse struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	StartedAt     time.Time          `json:"started_at"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	ConfigPath    string             `json:"config_path"`
	Profile       string             `json:"profile"`
	JournalPath   string             `json:"journal_path"`
	SocketPath    string             `json:"socket_path"`
	LockPath      string             `json:"lock_path"`
	Link          LinkStatus         `json:"link"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	LatestTick    *TickOutcome       `json:"latest_tick"`
}

// HistoryRequest fetches recent ticks and incidents. Limit caps both lists;
// zero applies the journal default.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// TickSummary mirrors a journal tick row.
type TickSummary struct {
	Seq       uint64         `json:"seq"`
	StartedAt time.Time      `json:"started_at"`
	ElapsedMS int64          `json:"elapsed_ms"`
	FailPct   int            `json:"fail_pct"`
	Breached  bool           `json:"breached"`
	Results   []probe.Result `json:"results"`
}

// IncidentSummary mirrors a journal incident row.
type IncidentSummary struct {
	ID              string           `json:"id"`
	TickSeq         uint64           `json:"tick_seq"`
	CreatedAt       time.Time        `json:"created_at"`
	RebootRequested bool             `json:"reboot_requested"`
	RebootSkipped   bool             `json:"reboot_skipped"`
	ModemAlive      bool             `json:"modem_alive"`
	WaitElapsedMS   int64            `json:"wait_elapsed_ms"`
	Services        []ServiceRestart `json:"services"`
	Err             string           `json:"err,omitempty"`
}

// HistoryResponse contains recent ticks and incidents, newest first.
type HistoryResponse struct {
	Ticks     []TickSummary     `json:"ticks"`
	Incidents []IncidentSummary `json:"incidents"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
