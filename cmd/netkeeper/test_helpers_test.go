package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Salamek/netkeeper/internal/config"
	"github.com/Salamek/netkeeper/internal/daemon"
	"github.com/Salamek/netkeeper/internal/ipc"
	"github.com/Salamek/netkeeper/internal/journal"
	"github.com/Salamek/netkeeper/internal/logging"
	"github.com/Salamek/netkeeper/internal/monitor"
	"github.com/Salamek/netkeeper/internal/probe"
	"github.com/Salamek/netkeeper/internal/testsupport"
)

type okProber struct{}

func (okProber) Run(_ context.Context, targets []string) []probe.Result {
	results := make([]probe.Result, 0, len(targets))
	for _, target := range targets {
		results = append(results, probe.Result{Target: target, OK: true, Attempts: 1, Latency: 12 * time.Millisecond})
	}
	return results
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *journal.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t, testsupport.WithTargets("one.example", "two.example"))

	configPath := filepath.Join(homeDir, ".config", "netkeeper", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenJournal(t, cfg)

	logger := logging.NewNop()
	mon := monitor.New(cfg, okProber{}, nil, store, nil, logger, monitor.WithTickInterval(time.Hour))

	d, err := daemon.New(cfg, store, logger, mon, configPath)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(base, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("unix sockets unavailable: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	var targets strings.Builder
	for i, target := range cfg.Targets {
		if i > 0 {
			targets.WriteString(", ")
		}
		fmt.Fprintf(&targets, "%q", target)
	}
	content := fmt.Sprintf(
		"targets = [%s]\nmodem_url = %q\n\n[paths]\ndata_dir = %q\nlog_dir = %q\n",
		targets.String(),
		cfg.ModemURL,
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
