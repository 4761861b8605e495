package monitor

import (
	"context"
	"strings"
	"time"

	"github.com/Salamek/netkeeper/internal/journal"
	"github.com/Salamek/netkeeper/internal/logging"
	"github.com/Salamek/netkeeper/internal/probe"
	"github.com/Salamek/netkeeper/internal/recovery"
)

// tickSlackSeconds pads the probe budget beyond timeout*attempts so dials
// report their own timeout errors before the tick context fires.
const tickSlackSeconds = 5

// Run drives the tick loop until ctx is canceled. The first tick fires
// immediately; later ticks fire at the configured check interval.
// Cancellation is honored between ticks only, so a tick in flight always
// finishes and records its outcome. Run returns nil on shutdown.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		logging.Int("targets", len(m.cfg.Targets)),
		logging.Int(logging.FieldThreshold, m.cfg.TargetsFailThreshold),
		logging.Duration("interval", m.interval),
	)

	m.tick(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return nil
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one full probe pass and, when the failure threshold is
// breached, the recovery sequence. Probes run detached from the loop
// context so shutdown cannot truncate a pass mid-flight; recovery keeps
// the cancelable context so shutdown can interrupt its waiting.
func (m *Monitor) tick(ctx context.Context) {
	m.seq++
	outcome := TickOutcome{Seq: m.seq, Start: time.Now()}

	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.probeBudget())
	outcome.Results = m.prober.Run(probeCtx, m.cfg.Targets)
	cancel()

	outcome.FailPct = probe.FailPercent(outcome.Results)
	outcome.Breached = outcome.FailPct > m.cfg.TargetsFailThreshold
	outcome.Elapsed = time.Since(outcome.Start)

	// The tick row must exist before recovery journals an incident
	// referencing it.
	m.journalTick(ctx, &outcome)

	if outcome.Breached {
		m.handleBreach(ctx, &outcome)
	}

	m.setLatest(outcome)
	m.logTick(&outcome)
}

func (m *Monitor) probeBudget() time.Duration {
	perProbe := m.cfg.Probe.TimeoutSeconds
	if perProbe <= 0 {
		perProbe = 5
	}
	attempts := m.cfg.Probe.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(perProbe*attempts+tickSlackSeconds) * time.Second
}

func (m *Monitor) journalTick(ctx context.Context, outcome *TickOutcome) {
	if m.store == nil {
		return
	}
	rec := journal.TickRecord{
		Seq:       outcome.Seq,
		StartedAt: outcome.Start,
		Elapsed:   outcome.Elapsed,
		FailPct:   outcome.FailPct,
		Breached:  outcome.Breached,
		Results:   outcome.Results,
	}
	if err := m.store.RecordTick(context.WithoutCancel(ctx), rec); err != nil {
		logging.WarnWithContext(m.logger, "tick not journaled", "journal_write_failed",
			logging.Uint64(logging.FieldTickSeq, outcome.Seq),
			logging.Error(err),
			logging.String(logging.FieldImpact, "history and reboot budget miss this tick"),
		)
	}
}

func (m *Monitor) handleBreach(ctx context.Context, outcome *TickOutcome) {
	failed := failedTargets(outcome.Results)
	logging.WarnWithContext(m.logger, "connectivity threshold breached", "threshold_breached",
		logging.Uint64(logging.FieldTickSeq, outcome.Seq),
		logging.Int(logging.FieldFailPct, outcome.FailPct),
		logging.Int(logging.FieldThreshold, m.cfg.TargetsFailThreshold),
		logging.String("failed_targets", strings.Join(failed, ",")),
		logging.String(logging.FieldImpact, "recovery sequence starting"),
	)
	m.notifyBreach(ctx, outcome.FailPct, failed)

	if m.recoverer == nil {
		return
	}
	outcome.Recovered = m.recoverer.Recover(ctx, outcome.Seq, outcome.FailPct)
	m.notifyRecovery(ctx, outcome.Recovered)
}

func (m *Monitor) notifyBreach(ctx context.Context, failPct int, failed []string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.NotifyBreach(ctx, failPct, m.cfg.TargetsFailThreshold, failed); err != nil {
		logging.WarnWithContext(m.logger, "breach notification failed", "notify_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "operator not alerted about the outage"),
		)
	}
}

func (m *Monitor) notifyRecovery(ctx context.Context, report *recovery.Report) {
	if m.notifier == nil || report == nil {
		return
	}
	err := m.notifier.NotifyRecovery(ctx, report.Succeeded(), report.WaitElapsed, report.FailedServices())
	if err != nil {
		logging.WarnWithContext(m.logger, "recovery notification failed", "notify_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "operator not alerted about the recovery outcome"),
		)
	}
}

func (m *Monitor) logTick(outcome *TickOutcome) {
	logger := m.logger
	if outcome.Recovered != nil {
		logger = logger.With(logging.Bool("recovered", outcome.Recovered.Succeeded()))
	}
	logger.Info("tick completed",
		logging.Uint64(logging.FieldTickSeq, outcome.Seq),
		logging.Int("targets", len(outcome.Results)),
		logging.Int("failed", probe.FailedCount(outcome.Results)),
		logging.Int(logging.FieldFailPct, outcome.FailPct),
		logging.Bool("breached", outcome.Breached),
		logging.Duration("elapsed", outcome.Elapsed),
	)
}

func failedTargets(results []probe.Result) []string {
	var failed []string
	for _, r := range results {
		if !r.OK {
			failed = append(failed, r.Target)
		}
	}
	return failed
}
