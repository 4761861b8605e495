package main

import (
	"strings"
	"testing"
	"time"
)

func TestHumanizeLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"reboot_skipped", "Reboot Skipped"},
		{"dev", "Dev"},
		{"link-watch", "Link Watch"},
		{"  production  ", "Production"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := humanizeLabel(tc.in); got != tc.want {
			t.Fatalf("humanizeLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{500 * time.Microsecond, "<1ms"},
		{42 * time.Millisecond, "42ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.in); got != tc.want {
			t.Fatalf("formatDuration(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderStatusLinePlain(t *testing.T) {
	line := renderStatusLine("Status", statusOK, "Running", false)
	requireContains(t, line, "Status:")
	requireContains(t, line, "[OK] Running")
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("expected no ANSI codes, got %q", line)
	}
}

func TestRenderStatusLineColorized(t *testing.T) {
	line := renderStatusLine("Status", statusWarn, "Not running", true)
	requireContains(t, line, ansiYellow)
	requireContains(t, line, ansiReset)
}

func TestRenderTableAlignment(t *testing.T) {
	out := renderTable(
		[]string{"Target", "Latency"},
		[][]string{{"one.example", "12ms"}, {"two.example", "9ms"}},
		2,
	)
	requireContains(t, out, "one.example")
	requireContains(t, out, "12ms")
	requireContains(t, out, "Target")
}
