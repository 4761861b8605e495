package journal

import (
	"time"

	"github.com/Salamek/netkeeper/internal/probe"
)

// TickRecord is one monitoring tick as stored in the journal.
type TickRecord struct {
	Seq       uint64
	StartedAt time.Time
	Elapsed   time.Duration
	FailPct   int
	Breached  bool
	Results   []probe.Result
}

// ServiceRestart records one unit restart attempt within an incident.
type ServiceRestart struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
	Err  string `json:"err,omitempty"`
}

// IncidentRecord is one recovery run as stored in the journal.
type IncidentRecord struct {
	ID              string
	TickSeq         uint64
	CreatedAt       time.Time
	RebootRequested bool
	RebootSkipped   bool
	ModemAlive      bool
	WaitElapsed     time.Duration
	Services        []ServiceRestart
	Err             string
}
