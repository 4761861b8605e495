package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Salamek/netkeeper/internal/config"
	"github.com/Salamek/netkeeper/internal/journal"
	"github.com/Salamek/netkeeper/internal/logging"
	"github.com/Salamek/netkeeper/internal/notifications"
	"github.com/Salamek/netkeeper/internal/probe"
	"github.com/Salamek/netkeeper/internal/recovery"
)

// TickOutcome is one completed monitoring tick. Elapsed covers the probe
// phase only; recovery time is reported on the recovery report itself.
type TickOutcome struct {
	Seq       uint64           `json:"seq"`
	Start     time.Time        `json:"start"`
	Elapsed   time.Duration    `json:"elapsed"`
	Results   []probe.Result   `json:"results"`
	FailPct   int              `json:"fail_pct"`
	Breached  bool             `json:"breached"`
	Recovered *recovery.Report `json:"recovered,omitempty"`
}

// Prober fans out probes over the configured targets.
type Prober interface {
	Run(ctx context.Context, targets []string) []probe.Result
}

// Recoverer runs the recovery sequence for a breached tick.
type Recoverer interface {
	Recover(ctx context.Context, tickSeq uint64, failPct int) *recovery.Report
}

// Monitor drives periodic connectivity checks.
type Monitor struct {
	cfg       *config.Config
	prober    Prober
	recoverer Recoverer
	store     *journal.Store
	notifier  notifications.Service
	logger    *slog.Logger
	interval  time.Duration

	mu     sync.RWMutex
	latest *TickOutcome

	seq uint64
}

// Option adjusts monitor construction.
type Option func(*Monitor)

// WithTickInterval overrides the configured check interval, primarily
// for tests.
func WithTickInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// New constructs a monitor over the given collaborators. The store,
// recoverer, and notifier may be nil; the loop then only probes and
// keeps the in-memory snapshot. With a store, the tick counter resumes
// after the journal's last recorded tick.
func New(cfg *config.Config, prober Prober, recoverer Recoverer, store *journal.Store, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Monitor {
	interval := time.Duration(cfg.CheckIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	m := &Monitor{
		cfg:       cfg,
		prober:    prober,
		recoverer: recoverer,
		store:     store,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "monitor"),
		interval:  interval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store != nil {
		last, err := m.store.LastTickSeq(context.Background())
		if err != nil {
			logging.WarnWithContext(m.logger, "tick counter not seeded from journal", "journal_read_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "tick journal writes may collide with the previous run"),
			)
		} else {
			m.seq = last
		}
	}
	return m
}

// SetLogger updates the monitor's logging destination.
func (m *Monitor) SetLogger(logger *slog.Logger) {
	if m == nil {
		return
	}
	m.logger = logging.NewComponentLogger(logger, "monitor")
}

// Latest returns a copy of the most recent tick outcome. The second
// return is false until the first tick completes.
func (m *Monitor) Latest() (TickOutcome, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return TickOutcome{}, false
	}
	return *m.latest, true
}

func (m *Monitor) setLatest(outcome TickOutcome) {
	m.mu.Lock()
	m.latest = &outcome
	m.mu.Unlock()
}
