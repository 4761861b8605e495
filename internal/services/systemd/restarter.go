package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/Salamek/netkeeper/internal/logging"
	"github.com/Salamek/netkeeper/internal/services"
)

const (
	systemctlCommand = "systemctl"
	componentName    = "systemd"
)

type commandRunner func(ctx context.Context, name string, args ...string) error

// Restarter restarts systemd units via systemctl.
type Restarter struct {
	logger    *slog.Logger
	run       commandRunner
	skipCheck bool

	readyOnce sync.Once
	readyErr  error
}

// RestarterOption customizes a Restarter.
type RestarterOption func(*Restarter)

// WithCommandRunner injects a custom command runner (primarily for tests).
func WithCommandRunner(r commandRunner) RestarterOption {
	return func(res *Restarter) {
		if r != nil {
			res.run = r
		}
	}
}

// WithoutDependencyCheck disables systemctl detection (used in tests).
func WithoutDependencyCheck() RestarterOption {
	return func(res *Restarter) {
		res.skipCheck = true
	}
}

// NewRestarter constructs a systemctl-backed restarter. The binary is
// located lazily on first use so construction never fails on hosts
// without systemd; every restart there reports a service restart error.
func NewRestarter(logger *slog.Logger, opts ...RestarterOption) *Restarter {
	r := &Restarter{
		logger: logging.NewComponentLogger(logger, componentName),
		run:    defaultCommandRunner,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetLogger updates the restarter's logging destination.
func (r *Restarter) SetLogger(logger *slog.Logger) {
	if r == nil {
		return
	}
	r.logger = logging.NewComponentLogger(logger, componentName)
}

func (r *Restarter) ready() error {
	r.readyOnce.Do(func() {
		if r.skipCheck {
			return
		}
		if _, err := exec.LookPath(systemctlCommand); err != nil {
			r.readyErr = services.Wrap(services.ErrServiceRestart, componentName, "locate systemctl",
				fmt.Sprintf("could not find %q on PATH", systemctlCommand), err)
		}
	})
	return r.readyErr
}

// Restart restarts unit with `systemctl restart --quiet`. Units that are
// neither active nor enabled are skipped with a warning rather than
// restarted into existence.
func (r *Restarter) Restart(ctx context.Context, unit string) error {
	if r == nil {
		return services.Wrap(services.ErrServiceRestart, componentName, "restart", "restarter not initialized", nil)
	}
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return services.Wrap(services.ErrServiceRestart, componentName, "restart", "unit name is required", nil)
	}
	if err := r.ready(); err != nil {
		return err
	}

	if !r.unitWanted(ctx, unit) {
		logging.WarnWithContext(r.logger, "unit neither active nor enabled, skipping restart", "unit_restart_skipped",
			logging.String(logging.FieldUnit, unit),
			logging.String(logging.FieldImpact, "unit left stopped"))
		return nil
	}

	if err := r.run(ctx, systemctlCommand, "restart", "--quiet", unit); err != nil {
		return services.Wrap(services.ErrServiceRestart, componentName, "restart",
			fmt.Sprintf("systemctl restart %s", unit), err)
	}
	if r.logger != nil {
		r.logger.Info("unit restarted",
			logging.String(logging.FieldEventType, "unit_restarted"),
			logging.String(logging.FieldUnit, unit))
	}
	return nil
}

// unitWanted reports whether unit is currently active or enabled. Both
// systemctl queries answer through their exit code.
func (r *Restarter) unitWanted(ctx context.Context, unit string) bool {
	if err := r.run(ctx, systemctlCommand, "is-active", "--quiet", unit); err == nil {
		return true
	}
	return r.run(ctx, systemctlCommand, "is-enabled", "--quiet", unit) == nil
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if trimmed := strings.TrimSpace(string(output)); trimmed != "" {
			return fmt.Errorf("%w: %s", err, trimmed)
		}
		return err
	}
	return nil
}
