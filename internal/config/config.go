package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/Salamek/netkeeper/internal/services"
)

//go:embed sample_config.toml
var sampleConfig string

// Profile selects the default set a Config starts from before the file is
// applied.
type Profile string

const (
	// ProfileDev ships usable defaults so `netkeeper run` works out of the box.
	ProfileDev Profile = "dev"
	// ProfileProduction ships empty targets and modem URL; the config file
	// must supply real values before the daemon starts.
	ProfileProduction Profile = "production"
)

// Probe contains per-target probing knobs.
type Probe struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
	Attempts       int `toml:"attempts"`
	TCPPort        int `toml:"tcp_port"`
}

// Recovery contains modem reboot and wait-for-alive timing knobs.
type Recovery struct {
	RebootSettleSeconds int `toml:"reboot_settle_seconds"`
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	MaxWaitSeconds      int `toml:"max_wait_seconds"`
	MaxReboots          int `toml:"max_reboots"`
	RebootWindowMinutes int `toml:"reboot_window_minutes"`
}

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	MaxFiles      int    `toml:"max_files"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Link contains configuration for the optional modem interface watch.
type Link struct {
	WatchInterface string `toml:"watch_interface"`
}

// Config encapsulates all configuration values for netkeeper.
//
// The top-level keys drive the watchdog loop itself: which targets to probe,
// when a tick counts as breached, how to reach the modem, which services to
// restart after a recovery, and how often to tick. The sections tune the
// machinery around the loop:
//   - Probe: per-target timeout, retry attempts, TCP port for bare hosts
//   - Recovery: reboot settle/poll/max-wait timing and the reboot holdoff
//   - Paths: data directory (journal, socket, lock, pid) and log directory
//   - Logging: log format, level, and retention
//   - Notifications: ntfy push notification settings
//   - Link: optional udev watch on the modem's network interface
type Config struct {
	Targets              []string `toml:"targets"`
	TargetsFailThreshold int      `toml:"targets_fail_threshold"`
	ModemURL             string   `toml:"modem_url"`
	RestartServices      []string `toml:"restart_services"`
	CheckIntervalSeconds int      `toml:"check_interval_seconds"`

	Probe         Probe         `toml:"probe"`
	Recovery      Recovery      `toml:"recovery"`
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
	Link          Link          `toml:"link"`

	Profile Profile `toml:"-"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/netkeeper/config.toml")
}

// Load locates, parses, and validates a configuration file using the
// development profile. The returned config has all path fields expanded and
// normalized.
func Load(path string) (*Config, string, bool, error) {
	return LoadWithProfile(path, ProfileDev)
}

// LoadWithProfile behaves like Load starting from the given profile's
// defaults.
func LoadWithProfile(path string, profile Profile) (*Config, string, bool, error) {
	var cfg Config
	switch profile {
	case ProfileProduction:
		cfg = ProductionDefault()
	default:
		cfg = Default()
	}

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, services.Wrap(services.ErrConfiguration, "config", "open", resolvedPath, err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, services.Wrap(services.ErrConfiguration, "config", "parse", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv("NETKEEPER_CONFIG"))
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	userPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	systemPath := "/etc/netkeeper/config.toml"

	if info, err := os.Stat(userPath); err == nil && !info.IsDir() {
		return userPath, true, nil
	}
	if info, err := os.Stat(systemPath); err == nil && !info.IsDir() {
		return systemPath, true, nil
	}

	return userPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JournalPath returns the SQLite journal location inside the data directory.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.DataDir, "journal.db")
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "netkeeper.sock")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "netkeeper.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "netkeeper.pid")
}

// CurrentLogPath returns the stable pointer to the active run log. The
// daemon re-targets it at startup; `netkeeper logs` reads through it.
func (c *Config) CurrentLogPath() string {
	return filepath.Join(c.Paths.LogDir, "netkeeper.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
