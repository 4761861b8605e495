package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/Salamek/netkeeper/internal/config"
	"github.com/Salamek/netkeeper/internal/deps"
	"github.com/Salamek/netkeeper/internal/journal"
	"github.com/Salamek/netkeeper/internal/logging"
	"github.com/Salamek/netkeeper/internal/monitor"
	"github.com/Salamek/netkeeper/internal/notifications"
)

// Daemon coordinates the monitor loop and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *journal.Store
	monitor    *monitor.Monitor
	link       *linkMonitor
	configPath string

	lockPath string
	lock     *flock.Flock

	startedAt time.Time
	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	ConfigPath   string
	Profile      string
	JournalPath  string
	SocketPath   string
	LockPath     string
	Link         LinkStatus
	Dependencies []deps.Status
	LatestTick   *monitor.TickOutcome
}

// LinkStatus reports the optional modem interface watch.
type LinkStatus struct {
	Interface string
	Active    bool
	Events    uint64
}

// New constructs a daemon with initialized dependencies. configPath is the
// resolved configuration file location reported by status queries.
func New(cfg *config.Config, store *journal.Store, logger *slog.Logger, mon *monitor.Monitor, configPath string) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || mon == nil {
		return nil, errors.New("daemon requires config, journal store, logger, and monitor")
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		monitor:    mon,
		link:       newLinkMonitor(cfg, logger),
		configPath: configPath,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the monitor loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another netkeeper daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.monitor.Run(d.ctx)
	}()
	_ = d.link.Start(d.ctx)

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("netkeeper daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop cancels the monitor loop, waits for the in-flight tick to finish,
// and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.link.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file manually if the next start refuses to run"),
			logging.String(logging.FieldImpact, "stale lock may block the next daemon start"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("netkeeper daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status including the latest tick.
func (d *Daemon) Status() Status {
	st := Status{
		Running:     d.running.Load(),
		PID:         os.Getpid(),
		StartedAt:   d.startedAt,
		ConfigPath:  d.configPath,
		Profile:     string(d.cfg.Profile),
		JournalPath: d.cfg.JournalPath(),
		SocketPath:  d.cfg.SocketPath(),
		LockPath:    d.lockPath,
		Link: LinkStatus{
			Interface: strings.TrimSpace(d.cfg.Link.WatchInterface),
			Active:    d.link.Running(),
			Events:    d.link.Events(),
		},
		Dependencies: deps.CheckBinaries(deps.Defaults()),
	}
	if latest, ok := d.monitor.Latest(); ok {
		st.LatestTick = &latest
	}
	return st
}

// History returns recent ticks and incidents from the journal.
func (d *Daemon) History(ctx context.Context, limit int) ([]journal.TickRecord, []journal.IncidentRecord, error) {
	if d.store == nil {
		return nil, nil, errors.New("journal unavailable")
	}
	ticks, err := d.store.RecentTicks(ctx, limit)
	if err != nil {
		return nil, nil, err
	}
	incidents, err := d.store.RecentIncidents(ctx, limit)
	if err != nil {
		return nil, nil, err
	}
	return ticks, incidents, nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
