package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestCLIStatusDaemonNotRunning(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", filepath.Join(tmp, "home"))

	socket := filepath.Join(tmp, "missing.sock")
	out, _, err := runCLI(t, []string{"status"}, socket, "")
	if err != nil {
		t.Fatalf("status against missing socket: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestCLIStatusStoppedDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "No ticks completed yet")
}

func TestCLIStatusRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	if err := env.daemon.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		status := env.daemon.Status()
		return status.Running && status.LatestTick != nil
	})

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (pid")
	requireContains(t, out, env.configPath)
	requireContains(t, out, "one.example")
	requireContains(t, out, "two.example")
	requireContains(t, out, "0% of 2 targets")
	requireContains(t, out, "Link Watch")

	out, _, err = runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	requireContains(t, out, `"running": true`)
	requireContains(t, out, `"fail_pct": 0`)
}
