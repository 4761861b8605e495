package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pilebones/go-udev/netlink"

	"github.com/Salamek/netkeeper/internal/config"
	"github.com/Salamek/netkeeper/internal/logging"
)

// linkMonitor listens for udev netlink events on the modem's network
// interface so link flaps land in the log next to the tick history.
type linkMonitor struct {
	logger *slog.Logger
	iface  string

	events atomic.Uint64

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// newLinkMonitor creates a monitor for the configured watch interface.
// Returns nil when no interface is configured.
func newLinkMonitor(cfg *config.Config, logger *slog.Logger) *linkMonitor {
	if cfg == nil {
		return nil
	}

	iface := strings.TrimSpace(cfg.Link.WatchInterface)
	if iface == "" {
		return nil
	}

	return &linkMonitor{
		logger: logging.NewComponentLogger(logger, "link-monitor"),
		iface:  iface,
	}
}

// Start begins listening for udev netlink events. A connect failure is
// non-fatal: the watchdog loop does not depend on link events.
func (m *linkMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; interface events will not be tracked",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "run the daemon with permission to open netlink sockets"),
			logging.String(logging.FieldImpact, "link flaps will not appear in the log"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	// The goroutine keeps its own reference; Stop nils m.quit under the lock.
	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("link monitor started",
		logging.String(logging.FieldEventType, "link_monitor_started"),
		logging.String("interface", m.iface),
	)

	return nil
}

// Stop shuts down the link monitor.
func (m *linkMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	m.running = false

	m.logger.Info("link monitor stopped",
		logging.String(logging.FieldEventType, "link_monitor_stopped"),
	)
}

// Running reports whether the link monitor is active.
func (m *linkMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Events returns how many events were observed on the watched interface.
func (m *linkMonitor) Events() uint64 {
	if m == nil {
		return 0
	}
	return m.events.Load()
}

// monitorLoop reads netlink events and records interface changes.
func (m *linkMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	events := make(chan netlink.UEvent)
	errs := make(chan error)

	matcher := m.buildMatcher()

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(events, errs, matcher)

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-events:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("link monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "link_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "interface events may be missed"),
			)
		}
	}
}

// buildMatcher matches add/remove/move events on the net subsystem.
func (m *linkMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove|move"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "net",
		},
	})
	return rules
}

// handleEvent counts and logs events for the watched interface.
func (m *linkMonitor) handleEvent(uevent netlink.UEvent) {
	name := m.extractInterface(uevent)
	if name == "" {
		m.logger.Debug("ignoring event without interface name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}

	if name != m.iface {
		m.logger.Debug("ignoring event for unwatched interface",
			logging.String("interface", name),
			logging.String("watched", m.iface),
		)
		return
	}

	count := m.events.Add(1)
	m.logger.Info("interface event",
		logging.String(logging.FieldEventType, "link_event"),
		logging.String("interface", name),
		logging.String("action", string(uevent.Action)),
		logging.Uint64("count", count),
	)
}

// extractInterface gets the interface name from a uevent.
func (m *linkMonitor) extractInterface(uevent netlink.UEvent) string {
	if name := uevent.Env["INTERFACE"]; name != "" {
		return name
	}

	// Fall back to the DEVPATH tail (e.g. /devices/.../net/wwan0)
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return parts[len(parts)-1]
}
