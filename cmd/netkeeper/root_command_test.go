package main

import (
	"strings"
	"testing"
)

func TestCLIVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, []string{"version"}, "unused.sock", "")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) == "" {
		t.Fatal("expected version output")
	}
}

func TestCLIUnknownCommandFails(t *testing.T) {
	_, _, err := runCLI(t, []string{"definitely-not-a-command"}, "unused.sock", "")
	if err == nil {
		t.Fatal("expected unknown command to fail")
	}
}

func TestCLINotifyTestUnconfigured(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"notify", "test"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("notify test: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}
