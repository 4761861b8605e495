package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Salamek/netkeeper/internal/config"
	"github.com/Salamek/netkeeper/internal/journal"
	"github.com/Salamek/netkeeper/internal/logging"
	"github.com/Salamek/netkeeper/internal/probe"
	"github.com/Salamek/netkeeper/internal/services/hilink"
)

// ModemController drives the LTE modem during recovery.
type ModemController interface {
	Status(ctx context.Context) (*hilink.StatusInfo, error)
	DeviceInfo(ctx context.Context) (*hilink.DeviceInfo, error)
	Reboot(ctx context.Context) error
	Alive(ctx context.Context) bool
}

// ServiceRestarter restarts one systemd unit.
type ServiceRestarter interface {
	Restart(ctx context.Context, unit string) error
}

// Prober fans out probes over the configured targets.
type Prober interface {
	Run(ctx context.Context, targets []string) []probe.Result
}

// Report describes one recovery run.
type Report struct {
	IncidentID      string                   `json:"incident_id"`
	RebootRequested bool                     `json:"reboot_requested"`
	RebootSkipped   bool                     `json:"reboot_skipped"`
	ModemAlive      bool                     `json:"modem_alive"`
	WaitElapsed     time.Duration            `json:"wait_elapsed"`
	ServiceResults  []journal.ServiceRestart `json:"service_results,omitempty"`
	Err             string                   `json:"err,omitempty"`
}

// Succeeded reports whether connectivity came back within the wait budget.
func (r *Report) Succeeded() bool {
	return r != nil && r.ModemAlive && r.Err == ""
}

// FailedServices lists units whose restart failed.
func (r *Report) FailedServices() []string {
	if r == nil {
		return nil
	}
	var failed []string
	for _, res := range r.ServiceResults {
		if !res.OK {
			failed = append(failed, res.Name)
		}
	}
	return failed
}

// Runner executes the recovery sequence for breached ticks.
type Runner struct {
	cfg       *config.Config
	modem     ModemController
	restarter ServiceRestarter
	prober    Prober
	store     *journal.Store
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSleep overrides the context-aware sleep (used in tests).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RunnerOption {
	return func(r *Runner) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// NewRunner constructs a recovery runner over the given collaborators.
func NewRunner(cfg *config.Config, modem ModemController, restarter ServiceRestarter, prober Prober, store *journal.Store, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:       cfg,
		modem:     modem,
		restarter: restarter,
		prober:    prober,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "recovery"),
		now:       time.Now,
		sleep:     sleepWithContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetLogger updates the runner's logging destination.
func (r *Runner) SetLogger(logger *slog.Logger) {
	if r == nil {
		return
	}
	r.logger = logging.NewComponentLogger(logger, "recovery")
}

// Recover runs the full sequence for the breached tick and journals the
// incident. It never returns nil; the report carries partial results
// when the context is canceled mid-run.
func (r *Runner) Recover(ctx context.Context, tickSeq uint64, failPct int) *Report {
	report := &Report{IncidentID: uuid.NewString()}
	started := r.now()

	logger := r.logger.With(
		logging.String(logging.FieldIncidentID, report.IncidentID),
		logging.Uint64(logging.FieldTickSeq, tickSeq),
	)
	logger.Info("starting recovery",
		logging.String(logging.FieldEventType, "recovery_started"),
		logging.Int(logging.FieldFailPct, failPct))

	rebootAllowed := r.rebootAllowed(ctx, started, logger)
	r.logModemSnapshot(ctx, logger)

	if rebootAllowed {
		report.RebootRequested = true
		logger.Info("rebooting modem", logging.String(logging.FieldEventType, "modem_reboot"))
		if err := r.modem.Reboot(ctx); err != nil {
			logging.ErrorWithContext(logger, "modem reboot failed", "modem_reboot_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check modem URL and credentials"))
		}
	} else {
		report.RebootSkipped = true
		logging.WarnWithContext(logger, "reboot budget exhausted, skipping modem reboot", "reboot_skipped",
			logging.Int("max_reboots", r.cfg.Recovery.MaxReboots),
			logging.Int("window_minutes", r.cfg.Recovery.RebootWindowMinutes),
			logging.String(logging.FieldImpact, "waiting for connectivity without a reboot"))
	}

	waitStart := r.now()
	report.ModemAlive = r.waitForConnectivity(ctx, report.RebootRequested, logger)
	report.WaitElapsed = r.now().Sub(waitStart)

	// Units are restarted only once connectivity is back; restarting them
	// against a dead uplink would just flap them.
	if report.ModemAlive {
		for _, unit := range r.cfg.RestartServices {
			err := r.restarter.Restart(ctx, unit)
			result := journal.ServiceRestart{Name: unit, OK: err == nil}
			if err != nil {
				result.Err = err.Error()
				logging.ErrorWithContext(logger, "unit restart failed", "unit_restart_failed",
					logging.String(logging.FieldUnit, unit),
					logging.Error(err))
			}
			report.ServiceResults = append(report.ServiceResults, result)
		}
	}

	if ctx.Err() != nil {
		report.Err = fmt.Sprintf("recovery interrupted: %v", ctx.Err())
	} else if !report.ModemAlive {
		maxWait := time.Duration(r.cfg.Recovery.MaxWaitSeconds) * time.Second
		report.Err = fmt.Sprintf("connectivity not restored within %s", maxWait)
	}

	r.journalIncident(ctx, tickSeq, started, report, logger)

	logger.Info("recovery finished",
		logging.String(logging.FieldEventType, "recovery_finished"),
		logging.Bool("recovered", report.Succeeded()),
		logging.Bool("reboot_requested", report.RebootRequested),
		logging.Duration("waited", report.WaitElapsed))
	return report
}

// rebootAllowed consults the incident journal for the sliding-window
// reboot budget. A failed history read does not block the reboot.
func (r *Runner) rebootAllowed(ctx context.Context, now time.Time, logger *slog.Logger) bool {
	if r.store == nil || r.cfg.Recovery.MaxReboots <= 0 {
		return true
	}
	window := time.Duration(r.cfg.Recovery.RebootWindowMinutes) * time.Minute
	count, err := r.store.RebootsSince(ctx, now.Add(-window))
	if err != nil {
		logging.WarnWithContext(logger, "reboot history unavailable", "journal_read_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "reboot budget not enforced for this incident"))
		return true
	}
	return count < r.cfg.Recovery.MaxReboots
}

func (r *Runner) logModemSnapshot(ctx context.Context, logger *slog.Logger) {
	if info, err := r.modem.DeviceInfo(ctx); err != nil {
		logger.Debug("modem device info unavailable before reboot", logging.Error(err))
	} else {
		logger.Info("modem identity before reboot",
			logging.String(logging.FieldEventType, "modem_snapshot"),
			logging.String("device_name", info.DeviceName),
			logging.String("serial_number", info.SerialNumber),
			logging.String("imei", info.IMEI),
			logging.String("software_version", info.SoftwareVersion))
	}

	status, err := r.modem.Status(ctx)
	if err != nil {
		logger.Debug("modem status unavailable before reboot", logging.Error(err))
		return
	}
	logger.Info("modem status before reboot",
		logging.String(logging.FieldEventType, "modem_snapshot"),
		logging.String("connection_state", status.ConnectionStatus.String()),
		logging.Int("signal", status.SignalIcon),
		logging.Int("network_type", status.CurrentNetworkType))
}

// waitForConnectivity blocks until the modem answers and at least one
// target is reachable, or the wait budget runs out.
func (r *Runner) waitForConnectivity(ctx context.Context, rebooted bool, logger *slog.Logger) bool {
	settle := time.Duration(r.cfg.Recovery.RebootSettleSeconds) * time.Second
	poll := time.Duration(r.cfg.Recovery.PollIntervalSeconds) * time.Second
	maxWait := time.Duration(r.cfg.Recovery.MaxWaitSeconds) * time.Second
	deadline := r.now().Add(maxWait)

	if rebooted {
		if err := r.sleep(ctx, settle); err != nil {
			return false
		}
	}

	for {
		if ctx.Err() != nil {
			return false
		}
		if r.connectivityRestored(ctx, logger) {
			return true
		}
		if r.now().After(deadline) {
			return false
		}
		if err := r.sleep(ctx, poll); err != nil {
			return false
		}
	}
}

func (r *Runner) connectivityRestored(ctx context.Context, logger *slog.Logger) bool {
	if !r.modem.Alive(ctx) {
		logger.Debug("modem not answering yet")
		return false
	}
	for _, res := range r.prober.Run(ctx, r.cfg.Targets) {
		if res.OK {
			return true
		}
	}
	logger.Debug("modem answering but no target reachable yet")
	return false
}

// journalIncident records the incident under a detached context; a
// shutdown mid-recovery still counts against the reboot budget.
func (r *Runner) journalIncident(ctx context.Context, tickSeq uint64, started time.Time, report *Report, logger *slog.Logger) {
	if r.store == nil {
		return
	}
	rec := journal.IncidentRecord{
		ID:              report.IncidentID,
		TickSeq:         tickSeq,
		CreatedAt:       started,
		RebootRequested: report.RebootRequested,
		RebootSkipped:   report.RebootSkipped,
		ModemAlive:      report.ModemAlive,
		WaitElapsed:     report.WaitElapsed,
		Services:        report.ServiceResults,
		Err:             report.Err,
	}
	if err := r.store.RecordIncident(context.WithoutCancel(ctx), rec); err != nil {
		logging.WarnWithContext(logger, "incident not journaled", "journal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "history and reboot budget may undercount"))
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
