package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Prober checks a single target. Implementations must honor ctx cancellation
// and never block past their timeout budget.
type Prober interface {
	Probe(ctx context.Context, target string) error
}

// NetProber probes bare hosts with TCP dials and URLs with HTTP GETs.
type NetProber struct {
	Timeout time.Duration
	TCPPort int

	dialer net.Dialer
	client *http.Client
}

// NewNetProber builds a prober with the given per-attempt timeout and the TCP
// port used for bare host targets.
func NewNetProber(timeout time.Duration, tcpPort int) *NetProber {
	return &NetProber{
		Timeout: timeout,
		TCPPort: tcpPort,
		client: &http.Client{
			// The per-attempt context carries the deadline; the client must
			// not add a second, competing timeout.
			Timeout: 0,
		},
	}
}

func (p *NetProber) Probe(ctx context.Context, target string) error {
	attemptCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	if strings.Contains(target, "://") {
		return p.probeHTTP(attemptCtx, target)
	}
	return p.probeTCP(attemptCtx, target)
}

func (p *NetProber) probeHTTP(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	// Reachability, not health: any response the server managed to produce
	// below the 5xx range proves the path works.
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (p *NetProber) probeTCP(ctx context.Context, target string) error {
	address := target
	// Bare hosts and bare IPv6 literals get the configured port appended;
	// SplitHostPort failing means the target carries no port of its own.
	if _, _, err := net.SplitHostPort(target); err != nil {
		port := p.TCPPort
		if port <= 0 {
			port = 53
		}
		address = net.JoinHostPort(strings.Trim(target, "[]"), strconv.Itoa(port))
	}
	conn, err := p.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}
	return conn.Close()
}
