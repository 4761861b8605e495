package recovery_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Salamek/netkeeper/internal/journal"
	"github.com/Salamek/netkeeper/internal/probe"
	"github.com/Salamek/netkeeper/internal/recovery"
	"github.com/Salamek/netkeeper/internal/services/hilink"
	"github.com/Salamek/netkeeper/internal/testsupport"
)

type fakeModem struct {
	mu          sync.Mutex
	reboots     int
	rebootErr   error
	statusErr   error
	deviceErr   error
	deviceCalls int
	aliveAfter  int // Alive answers true from this call on; 0 means never
	aliveCalls  int
}

func (m *fakeModem) Status(context.Context) (*hilink.StatusInfo, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return &hilink.StatusInfo{ConnectionStatus: hilink.StateConnected, SignalIcon: 3}, nil
}

func (m *fakeModem) DeviceInfo(context.Context) (*hilink.DeviceInfo, error) {
	m.mu.Lock()
	m.deviceCalls++
	m.mu.Unlock()
	if m.deviceErr != nil {
		return nil, m.deviceErr
	}
	return &hilink.DeviceInfo{DeviceName: "E8372", SerialNumber: "SN123", IMEI: "860000000000001"}, nil
}

func (m *fakeModem) deviceInfoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deviceCalls
}

func (m *fakeModem) Reboot(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reboots++
	return m.rebootErr
}

func (m *fakeModem) Alive(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliveCalls++
	return m.aliveAfter > 0 && m.aliveCalls >= m.aliveAfter
}

func (m *fakeModem) rebootCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reboots
}

type fakeProber struct{ ok bool }

func (p *fakeProber) Run(ctx context.Context, targets []string) []probe.Result {
	results := make([]probe.Result, len(targets))
	for i, target := range targets {
		results[i] = probe.Result{Target: target, OK: p.ok, Attempts: 1}
	}
	return results
}

type fakeRestarter struct {
	mu    sync.Mutex
	units []string
	errs  map[string]error
}

func (f *fakeRestarter) Restart(ctx context.Context, unit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.units = append(f.units, unit)
	return f.errs[unit]
}

// fakeClock advances only when the runner sleeps, so wait loops finish
// instantly in tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return nil
}

func TestRecoverHappyPath(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithTargets("example.org"),
		testsupport.WithRestartServices("openvpn@client", "dnsmasq"))
	store := testsupport.MustOpenJournal(t, cfg)
	clock := newFakeClock()

	ctx := context.Background()
	if err := store.RecordTick(ctx, journal.TickRecord{Seq: 9, StartedAt: clock.now(), FailPct: 100, Breached: true}); err != nil {
		t.Fatalf("RecordTick: %v", err)
	}

	modem := &fakeModem{aliveAfter: 2}
	restarter := &fakeRestarter{}
	runner := recovery.NewRunner(cfg, modem, restarter, &fakeProber{ok: true}, store, nil,
		recovery.WithClock(clock.now), recovery.WithSleep(clock.sleep))

	report := runner.Recover(ctx, 9, 100)

	if !report.RebootRequested || report.RebootSkipped {
		t.Fatalf("expected a requested reboot: %#v", report)
	}
	if modem.rebootCount() != 1 {
		t.Fatalf("reboots = %d, want 1", modem.rebootCount())
	}
	if modem.deviceInfoCount() != 1 {
		t.Fatalf("device info queries = %d, want 1 pre-reboot snapshot", modem.deviceInfoCount())
	}
	if !report.Succeeded() {
		t.Fatalf("expected success: %#v", report)
	}
	if report.WaitElapsed <= 0 {
		t.Fatalf("WaitElapsed = %v, want positive", report.WaitElapsed)
	}
	if len(report.ServiceResults) != 2 ||
		report.ServiceResults[0].Name != "openvpn@client" ||
		report.ServiceResults[1].Name != "dnsmasq" {
		t.Fatalf("service results out of order: %#v", report.ServiceResults)
	}
	if failed := report.FailedServices(); len(failed) != 0 {
		t.Fatalf("unexpected failed services: %v", failed)
	}

	incidents, err := store.RecentIncidents(ctx, 5)
	if err != nil {
		t.Fatalf("RecentIncidents: %v", err)
	}
	if len(incidents) != 1 || incidents[0].ID != report.IncidentID {
		t.Fatalf("incident not journaled: %#v", incidents)
	}
	if incidents[0].TickSeq != 9 || !incidents[0].RebootRequested {
		t.Fatalf("incident fields wrong: %#v", incidents[0])
	}
}

func TestRecoverServiceFailureDoesNotBlockRemaining(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithTargets("example.org"),
		testsupport.WithRestartServices("openvpn@client", "dnsmasq"))
	store := testsupport.MustOpenJournal(t, cfg)
	clock := newFakeClock()

	ctx := context.Background()
	if err := store.RecordTick(ctx, journal.TickRecord{Seq: 1, StartedAt: clock.now(), FailPct: 100, Breached: true}); err != nil {
		t.Fatalf("RecordTick: %v", err)
	}

	restarter := &fakeRestarter{errs: map[string]error{
		"openvpn@client": errors.New("exit status 1"),
	}}
	runner := recovery.NewRunner(cfg, &fakeModem{aliveAfter: 1}, restarter, &fakeProber{ok: true}, store, nil,
		recovery.WithClock(clock.now), recovery.WithSleep(clock.sleep))

	report := runner.Recover(ctx, 1, 100)

	if len(restarter.units) != 2 {
		t.Fatalf("expected both units attempted, got %v", restarter.units)
	}
	if report.ServiceResults[0].OK || report.ServiceResults[0].Err == "" {
		t.Fatalf("first unit should carry the failure: %#v", report.ServiceResults[0])
	}
	if !report.ServiceResults[1].OK {
		t.Fatalf("second unit should succeed: %#v", report.ServiceResults[1])
	}
	if failed := report.FailedServices(); len(failed) != 1 || failed[0] != "openvpn@client" {
		t.Fatalf("FailedServices = %v", failed)
	}
	if !report.Succeeded() {
		t.Fatal("unit failures must not mark the recovery itself failed")
	}
}

func TestRecoverToleratesMissingDeviceInfo(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithTargets("example.org"),
		testsupport.WithRestartServices())
	store := testsupport.MustOpenJournal(t, cfg)
	clock := newFakeClock()

	ctx := context.Background()
	if err := store.RecordTick(ctx, journal.TickRecord{Seq: 1, StartedAt: clock.now(), FailPct: 100, Breached: true}); err != nil {
		t.Fatalf("RecordTick: %v", err)
	}

	modem := &fakeModem{aliveAfter: 1, deviceErr: errors.New("hilink error 100002")}
	runner := recovery.NewRunner(cfg, modem, &fakeRestarter{}, &fakeProber{ok: true}, store, nil,
		recovery.WithClock(clock.now), recovery.WithSleep(clock.sleep))

	report := runner.Recover(ctx, 1, 100)

	if !report.Succeeded() {
		t.Fatalf("device info failure must not fail the recovery: %#v", report)
	}
	if modem.rebootCount() != 1 {
		t.Fatalf("reboots = %d, want 1", modem.rebootCount())
	}
}

func TestRecoverHoldoffSkipsReboot(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithTargets("example.org"),
		testsupport.WithRestartServices(),
		testsupport.WithRebootBudget(1, 60))
	store := testsupport.MustOpenJournal(t, cfg)
	clock := newFakeClock()

	ctx := context.Background()
	if err := store.RecordTick(ctx, journal.TickRecord{Seq: 1, StartedAt: clock.now().Add(-10 * time.Minute), FailPct: 100, Breached: true}); err != nil {
		t.Fatalf("RecordTick: %v", err)
	}
	if err := store.RecordIncident(ctx, journal.IncidentRecord{
		ID:              "00000000-0000-4000-8000-000000000001",
		TickSeq:         1,
		CreatedAt:       clock.now().Add(-10 * time.Minute),
		RebootRequested: true,
	}); err != nil {
		t.Fatalf("RecordIncident: %v", err)
	}
	if err := store.RecordTick(ctx, journal.TickRecord{Seq: 2, StartedAt: clock.now(), FailPct: 100, Breached: true}); err != nil {
		t.Fatalf("RecordTick: %v", err)
	}

	modem := &fakeModem{aliveAfter: 1}
	runner := recovery.NewRunner(cfg, modem, &fakeRestarter{}, &fakeProber{ok: true}, store, nil,
		recovery.WithClock(clock.now), recovery.WithSleep(clock.sleep))

	report := runner.Recover(ctx, 2, 100)

	if report.RebootRequested || !report.RebootSkipped {
		t.Fatalf("expected skipped reboot: %#v", report)
	}
	if modem.rebootCount() != 0 {
		t.Fatalf("modem rebooted despite exhausted budget: %d", modem.rebootCount())
	}
	if !report.Succeeded() {
		t.Fatalf("connectivity returned, expected success: %#v", report)
	}
}

func TestRecoverGivesUpAfterMaxWait(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithTargets("example.org"),
		testsupport.WithRestartServices("openvpn@client"))
	store := testsupport.MustOpenJournal(t, cfg)
	clock := newFakeClock()

	ctx := context.Background()
	if err := store.RecordTick(ctx, journal.TickRecord{Seq: 3, StartedAt: clock.now(), FailPct: 100, Breached: true}); err != nil {
		t.Fatalf("RecordTick: %v", err)
	}

	modem := &fakeModem{aliveAfter: 0}
	restarter := &fakeRestarter{}
	runner := recovery.NewRunner(cfg, modem, restarter, &fakeProber{ok: false}, store, nil,
		recovery.WithClock(clock.now), recovery.WithSleep(clock.sleep))

	report := runner.Recover(ctx, 3, 100)

	if report.ModemAlive || report.Succeeded() {
		t.Fatalf("expected failed recovery: %#v", report)
	}
	if !strings.Contains(report.Err, "not restored") {
		t.Fatalf("Err = %q, want wait exhaustion message", report.Err)
	}
	maxWait := time.Duration(cfg.Recovery.MaxWaitSeconds) * time.Second
	if report.WaitElapsed < maxWait {
		t.Fatalf("WaitElapsed = %v, want at least %v", report.WaitElapsed, maxWait)
	}
	if len(restarter.units) != 0 {
		t.Fatalf("no unit may be restarted while connectivity is down: %v", restarter.units)
	}

	incidents, err := store.RecentIncidents(ctx, 5)
	if err != nil {
		t.Fatalf("RecentIncidents: %v", err)
	}
	if len(incidents) != 1 || incidents[0].Err == "" {
		t.Fatalf("failed recovery should be journaled with its error: %#v", incidents)
	}
}

func TestRecoverCanceledContextStillJournals(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithTargets("example.org"),
		testsupport.WithRestartServices("openvpn@client"))
	store := testsupport.MustOpenJournal(t, cfg)
	clock := newFakeClock()

	if err := store.RecordTick(context.Background(), journal.TickRecord{Seq: 4, StartedAt: clock.now(), FailPct: 100, Breached: true}); err != nil {
		t.Fatalf("RecordTick: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := recovery.NewRunner(cfg, &fakeModem{aliveAfter: 1}, &fakeRestarter{}, &fakeProber{ok: true}, store, nil,
		recovery.WithClock(clock.now), recovery.WithSleep(clock.sleep))

	report := runner.Recover(ctx, 4, 100)

	if report.Succeeded() {
		t.Fatalf("canceled context must not report success: %#v", report)
	}
	if !strings.Contains(report.Err, "interrupted") {
		t.Fatalf("Err = %q, want interruption message", report.Err)
	}

	incidents, err := store.RecentIncidents(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentIncidents: %v", err)
	}
	if len(incidents) != 1 || incidents[0].ID != report.IncidentID {
		t.Fatalf("incident must be journaled despite cancellation: %#v", incidents)
	}
}
