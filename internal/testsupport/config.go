package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/Salamek/netkeeper/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")

	builder := &configBuilder{t: t, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithTargets overrides the probe target list on the test config.
func WithTargets(targets ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Targets = targets
	}
}

// WithModemURL overrides the modem endpoint on the test config.
func WithModemURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ModemURL = url
	}
}

// WithFailThreshold overrides the breach threshold on the test config.
func WithFailThreshold(pct int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.TargetsFailThreshold = pct
	}
}

// WithRestartServices overrides the post-recovery unit list.
func WithRestartServices(units ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.RestartServices = units
	}
}

// WithRebootBudget tunes the recovery holdoff window.
func WithRebootBudget(maxReboots, windowMinutes int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Recovery.MaxReboots = maxReboots
		b.cfg.Recovery.RebootWindowMinutes = windowMinutes
	}
}
