package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Salamek/netkeeper/internal/config"
	"github.com/Salamek/netkeeper/internal/daemon"
	"github.com/Salamek/netkeeper/internal/deps"
	"github.com/Salamek/netkeeper/internal/ipc"
	"github.com/Salamek/netkeeper/internal/journal"
	"github.com/Salamek/netkeeper/internal/logging"
	"github.com/Salamek/netkeeper/internal/monitor"
	"github.com/Salamek/netkeeper/internal/notifications"
	"github.com/Salamek/netkeeper/internal/probe"
	"github.com/Salamek/netkeeper/internal/recovery"
	"github.com/Salamek/netkeeper/internal/services"
	"github.com/Salamek/netkeeper/internal/services/hilink"
	"github.com/Salamek/netkeeper/internal/services/systemd"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// ConfigPath is the resolved configuration file location, reported by
	// status queries.
	ConfigPath string
	// LogDirOverride replaces paths.log_dir for this run. When set, the
	// console half of the log tee carries errors only; the file keeps the
	// full stream.
	LogDirOverride string
}

// Run starts the netkeeper daemon runtime loop and blocks until SIGINT or
// SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "run", "config is required", nil)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errorsOnlyConsole := false
	if dir := strings.TrimSpace(opts.LogDirOverride); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "daemon", "resolve log dir", dir, err)
		}
		cfg.Paths.LogDir = expanded
		errorsOnlyConsole = true
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "create directories", "", err)
	}
	if err := unix.Access(cfg.Paths.LogDir, unix.W_OK); err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "log directory not writable", cfg.Paths.LogDir, err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("netkeeper-%s.log", runID))

	logger, err := buildRunLogger(cfg, logPath, errorsOnlyConsole)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "init logger", "", err)
	}
	logger = logger.With(logging.String(logging.FieldRunID, runID))

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.CurrentLogPath(), logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update netkeeper.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Logging.MaxFiles,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "netkeeper-*.log", Exclude: []string{logPath}},
	)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "write pid file", pidPath, err)
	}
	defer os.Remove(pidPath)

	store, err := journal.Open(cfg)
	if err != nil {
		logger.Error("open journal", logging.Error(err))
		return err
	}
	defer store.Close()
	pruneJournal(signalCtx, logger, cfg, store)

	notifier := notifications.NewService(cfg)
	prober := probe.NewNetProber(time.Duration(cfg.Probe.TimeoutSeconds)*time.Second, cfg.Probe.TCPPort)
	pool := probe.NewPool(prober, cfg.Probe.Attempts, logger)

	modem, err := hilink.NewConfiguredClient(cfg)
	if err != nil {
		logger.Error("configure modem client", logging.Error(err))
		return err
	}

	restarter := systemd.NewRestarter(logger)
	runner := recovery.NewRunner(cfg, modem, restarter, pool, store, logger)
	mon := monitor.New(cfg, pool, runner, store, notifier, logger)

	d, err := daemon.New(cfg, store, logger, mon, opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that no other netkeeper instance is running"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("netkeeper daemon shutting down")
	return nil
}

// buildRunLogger tees a console handler and a JSON file handler. The file
// always carries the configured level; the console drops to errors-only
// under a log directory override.
func buildRunLogger(cfg *config.Config, logPath string, errorsOnlyConsole bool) (*slog.Logger, error) {
	fileLogger, err := logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           "json",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		return nil, err
	}

	consoleLevel := cfg.Logging.Level
	if errorsOnlyConsole {
		consoleLevel = "error"
	}
	consoleLogger, err := logging.New(logging.Options{
		Level:            consoleLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stdout"},
	})
	if err != nil {
		return nil, err
	}

	return logging.TeeLogger(consoleLogger, fileLogger.Handler()), nil
}

func pruneJournal(ctx context.Context, logger *slog.Logger, cfg *config.Config, store *journal.Store) {
	if cfg.Logging.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -cfg.Logging.RetentionDays)
	removed, err := store.PruneBefore(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(logger, "journal prune failed", "journal_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "old history rows remain in the journal"),
		)
		return
	}
	if removed > 0 {
		logger.Info("journal pruned",
			logging.Int64("removed_rows", removed),
			logging.String(logging.FieldEventType, "journal_pruned"),
		)
	}
}

func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	modemHost := ""
	if client, err := hilink.NewConfiguredClient(cfg); err == nil {
		modemHost = client.Host()
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("modem_host", modemHost),
		logging.Int("targets", len(cfg.Targets)),
		logging.Int("restart_services", len(cfg.RestartServices)),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("journal_path", cfg.JournalPath()),
		logging.String("watch_interface", strings.TrimSpace(cfg.Link.WatchInterface)),
	}
	for _, dep := range deps.CheckBinaries(deps.Defaults()) {
		attrs = append(attrs, logging.Bool(dep.Command+"_available", dep.Available))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
