package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

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
	results := make([]probe.Result, len(targets))
	for i, target := range targets {
		results[i] = probe.Result{Target: target, OK: true, Attempts: 1}
	}
	return results
}

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTargets("one.example"))
	store := testsupport.MustOpenJournal(t, cfg)
	logger := logging.NewNop()
	mon := monitor.New(cfg, okProber{}, nil, store, nil, logger,
		monitor.WithTickInterval(time.Hour))
	d, err := daemon.New(cfg, store, logger, mon, "/tmp/netkeeper-test-config.toml")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(t.TempDir(), "netkeeper.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	pong, err := client.Ping()
	if err != nil {
		t.Fatalf("Ping RPC failed: %v", err)
	}
	if pong.PID != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), pong.PID)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running {
		t.Fatal("daemon should not report running before Start")
	}
	if status.ConfigPath != "/tmp/netkeeper-test-config.toml" {
		t.Fatalf("unexpected config path: %s", status.ConfigPath)
	}
	if len(status.Dependencies) == 0 {
		t.Fatal("expected dependency snapshot in status")
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		status, err = client.Status()
		if err != nil {
			t.Fatalf("Status RPC failed: %v", err)
		}
		if status.Running && status.LatestTick != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("daemon never reported a tick, status %+v", status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if status.LatestTick.Seq != 1 {
		t.Fatalf("expected tick seq 1, got %d", status.LatestTick.Seq)
	}
	if status.LatestTick.FailPct != 0 {
		t.Fatalf("expected fail pct 0, got %d", status.LatestTick.FailPct)
	}

	incident := journal.IncidentRecord{
		ID:              "11111111-1111-4111-8111-111111111111",
		TickSeq:         1,
		CreatedAt:       time.Now().UTC(),
		RebootRequested: true,
		ModemAlive:      true,
		WaitElapsed:     42 * time.Second,
		Services:        []journal.ServiceRestart{{Name: "openvpn@client", OK: true}},
	}
	if err := store.RecordIncident(ctx, incident); err != nil {
		t.Fatalf("record incident: %v", err)
	}

	history, err := client.History(10)
	if err != nil {
		t.Fatalf("History RPC failed: %v", err)
	}
	if len(history.Ticks) != 1 || history.Ticks[0].Seq != 1 {
		t.Fatalf("expected one tick in history, got %+v", history.Ticks)
	}
	if len(history.Incidents) != 1 {
		t.Fatalf("expected one incident in history, got %+v", history.Incidents)
	}
	if history.Incidents[0].WaitElapsedMS != 42000 {
		t.Fatalf("expected wait 42000ms, got %d", history.Incidents[0].WaitElapsedMS)
	}
	if len(history.Incidents[0].Services) != 1 || history.Incidents[0].Services[0].Name != "openvpn@client" {
		t.Fatalf("unexpected incident services: %+v", history.Incidents[0].Services)
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification RPC failed: %v", err)
	}
	if notify.Sent {
		t.Fatal("expected test notification to be skipped without a topic")
	}
	if notify.Message != "ntfy topic not configured" {
		t.Fatalf("unexpected message: %s", notify.Message)
	}

	d.Stop()
}

func TestNewServerReplacesStaleSocket(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTargets("one.example"))
	store := testsupport.MustOpenJournal(t, cfg)
	logger := logging.NewNop()
	mon := monitor.New(cfg, okProber{}, nil, store, nil, logger,
		monitor.WithTickInterval(time.Hour))
	d, err := daemon.New(cfg, store, logger, mon, "")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	socket := filepath.Join(t.TempDir(), "netkeeper.sock")
	if err := os.WriteFile(socket, nil, 0o600); err != nil {
		t.Fatalf("plant stale socket: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("expected stale socket to be replaced, got: %v", err)
	}
	srv.Close()
}

func TestNewServerRejectsLiveSocket(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTargets("one.example"))
	store := testsupport.MustOpenJournal(t, cfg)
	logger := logging.NewNop()
	mon := monitor.New(cfg, okProber{}, nil, store, nil, logger,
		monitor.WithTickInterval(time.Hour))
	d, err := daemon.New(cfg, store, logger, mon, "")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(t.TempDir(), "netkeeper.sock")
	first, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	first.Serve()
	t.Cleanup(func() {
		first.Close()
	})

	time.Sleep(50 * time.Millisecond)

	if _, err := ipc.NewServer(ctx, socket, d, logger); err == nil {
		t.Fatal("expected second server on a live socket to fail")
	} else if !strings.Contains(err.Error(), "in use") {
		t.Fatalf("expected in-use error, got: %v", err)
	}
}

func TestDialMissingSocketFails(t *testing.T) {
	if _, err := ipc.Dial(filepath.Join(t.TempDir(), "absent.sock")); err == nil {
		t.Fatal("expected dial to a missing socket to fail")
	}
}
