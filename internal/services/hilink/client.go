package hilink

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Salamek/netkeeper/internal/config"
	"github.com/Salamek/netkeeper/internal/services"
)

// HTTPDoer describes the HTTP client used by the modem client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	tokenHeader        = "__RequestVerificationToken"
	requestContentType = "application/xml; charset=UTF-8"
	maxResponseBytes   = 1 << 20
	defaultHTTPTimeout = 15 * time.Second
	sesTokInfoPath     = "api/webserver/SesTokInfo"
	loginPath          = "api/user/login"
	monitoringPath     = "api/monitoring/status"
	deviceInfoPath     = "api/device/information"
	deviceControlPath  = "api/device/control"
	loginPasswordType  = 4
	componentName      = "modem"
)

// Client talks to one HiLink modem. It is safe for concurrent use; the
// session cookie and verification token are shared and rotated under a lock.
type Client struct {
	baseURL  *url.URL
	username string
	password string
	client   HTTPDoer

	mu       sync.Mutex
	session  string
	token    string
	loggedIn bool
}

// NewClient parses a credentialed modem URL (userinfo carries user and
// password) and strips the credentials from request URLs; the vendor login
// handshake is used instead.
func NewClient(rawURL string, doer HTTPDoer) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, services.Wrap(services.ErrModemControl, componentName, "parse url", rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, services.Wrap(services.ErrModemControl, componentName, "parse url",
			fmt.Sprintf("unsupported scheme %q", parsed.Scheme), nil)
	}
	if parsed.Host == "" {
		return nil, services.Wrap(services.ErrModemControl, componentName, "parse url", "missing host", nil)
	}

	var username, password string
	if parsed.User != nil {
		username = parsed.User.Username()
		password, _ = parsed.User.Password()
		parsed.User = nil
	}

	if doer == nil {
		doer = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &Client{
		baseURL:  parsed,
		username: username,
		password: password,
		client:   doer,
	}, nil
}

// NewConfiguredClient builds a client from the configured modem URL. A URL
// without userinfo yields a degraded client that can read status but cannot
// log in or reboot.
func NewConfiguredClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrModemControl, componentName, "configure", "nil config", nil)
	}
	return NewClient(cfg.ModemURL, nil)
}

// Host returns the modem host for logging.
func (c *Client) Host() string {
	return c.baseURL.Host
}

// HasCredentials reports whether the configured URL carried userinfo.
func (c *Client) HasCredentials() bool {
	return c.username != ""
}

// Status fetches the current connection state.
func (c *Client) Status(ctx context.Context) (*StatusInfo, error) {
	var raw statusResponse
	err := c.withSessionRetry(ctx, func() error {
		return c.request(ctx, http.MethodGet, monitoringPath, nil, &raw)
	})
	if err != nil {
		return nil, services.Wrap(services.ErrModemControl, componentName, "status", "", err)
	}
	return &StatusInfo{
		ConnectionStatus:   ConnectionState(raw.ConnectionStatus),
		SignalIcon:         raw.SignalIcon,
		CurrentNetworkType: raw.CurrentNetworkType,
		RoamingStatus:      raw.RoamingStatus,
	}, nil
}

// DeviceInfo fetches device identity details for the pre-reboot snapshot.
func (c *Client) DeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	var raw deviceInfoResponse
	err := c.withSessionRetry(ctx, func() error {
		return c.request(ctx, http.MethodGet, deviceInfoPath, nil, &raw)
	})
	if err != nil {
		return nil, services.Wrap(services.ErrModemControl, componentName, "device info", "", err)
	}
	info := raw.DeviceInfo
	return &info, nil
}

// Reboot power-cycles the modem through the vendor control endpoint. The
// connection drops immediately on success, so a transport error after the
// request was sent is reported as-is for the caller to judge.
func (c *Client) Reboot(ctx context.Context) error {
	if err := c.login(ctx); err != nil {
		return err
	}
	payload := controlRequest{Control: rebootControl}
	err := c.withSessionRetry(ctx, func() error {
		return c.request(ctx, http.MethodPost, deviceControlPath, payload, nil)
	})
	if err != nil {
		return services.Wrap(services.ErrModemControl, componentName, "reboot", "", err)
	}
	return nil
}

// Alive reports whether the modem currently answers its status endpoint.
func (c *Client) Alive(ctx context.Context) bool {
	_, err := c.Status(ctx)
	return err == nil
}

func (c *Client) login(ctx context.Context) error {
	if c.username == "" {
		return services.Wrap(services.ErrModemControl, componentName, "login",
			"modem URL carries no credentials", nil)
	}

	c.mu.Lock()
	loggedIn := c.loggedIn
	c.mu.Unlock()
	if loggedIn {
		return nil
	}

	if err := c.refreshSession(ctx); err != nil {
		return services.Wrap(services.ErrModemControl, componentName, "login", "session bootstrap", err)
	}

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	payload := loginRequest{
		Username:     c.username,
		Password:     hashPassword(c.username, c.password, token),
		PasswordType: loginPasswordType,
	}
	if err := c.request(ctx, http.MethodPost, loginPath, payload, nil); err != nil {
		return services.Wrap(services.ErrModemControl, componentName, "login", "", err)
	}

	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()
	return nil
}

// withSessionRetry runs fn and, when the vendor reports a stale session or
// token, refreshes the session (and login, if one was held) and retries once.
func (c *Client) withSessionRetry(ctx context.Context, fn func() error) error {
	err := fn()
	var vendor *VendorError
	if err == nil || !errors.As(err, &vendor) || !sessionExpired(vendor.Code) {
		return err
	}

	c.mu.Lock()
	hadLogin := c.loggedIn
	c.loggedIn = false
	c.session = ""
	c.token = ""
	c.mu.Unlock()

	if refreshErr := c.refreshSession(ctx); refreshErr != nil {
		return errors.Join(err, refreshErr)
	}
	if hadLogin {
		if loginErr := c.login(ctx); loginErr != nil {
			return errors.Join(err, loginErr)
		}
	}
	return fn()
}

func (c *Client) refreshSession(ctx context.Context) error {
	var raw sesTokResponse
	if err := c.request(ctx, http.MethodGet, sesTokInfoPath, nil, &raw); err != nil {
		return err
	}
	c.mu.Lock()
	if raw.SesInfo != "" {
		c.session = raw.SesInfo
	}
	if raw.TokInfo != "" {
		c.token = raw.TokInfo
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	haveSession := c.session != ""
	c.mu.Unlock()
	if haveSession {
		return nil
	}
	return c.refreshSession(ctx)
}

func (c *Client) request(ctx context.Context, method, path string, payload, out any) error {
	if path != sesTokInfoPath {
		if err := c.ensureSession(ctx); err != nil {
			return err
		}
	}

	var body io.Reader
	if payload != nil {
		encoded, err := xml.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = strings.NewReader(xml.Header + string(encoded))
	}

	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", requestContentType)
	}

	c.mu.Lock()
	if c.session != "" {
		req.Header.Set("Cookie", c.session)
	}
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}
	c.mu.Unlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.rotateFromHeaders(resp)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	var envelope errorResponse
	if err := xml.Unmarshal(data, &envelope); err == nil {
		return &VendorError{Code: envelope.Code, Message: strings.TrimSpace(envelope.Message)}
	}

	if out != nil {
		if err := xml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// rotateFromHeaders picks up the fresh token and session the modem hands
// back after state-changing requests.
func (c *Client) rotateFromHeaders(resp *http.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token := resp.Header.Get(tokenHeader); token != "" {
		c.token = token
	}
	if cookie := resp.Header.Get("Set-Cookie"); cookie != "" {
		if idx := strings.IndexByte(cookie, ';'); idx >= 0 {
			cookie = cookie[:idx]
		}
		if cookie != "" {
			c.session = cookie
		}
	}
}

// hashPassword implements the vendor's password_type 4 scheme:
// base64(sha256hex(user + base64(sha256hex(pass)) + token)).
func hashPassword(username, password, token string) string {
	inner := base64.StdEncoding.EncodeToString([]byte(sha256Hex(password)))
	outer := sha256Hex(username + inner + token)
	return base64.StdEncoding.EncodeToString([]byte(outer))
}

func sha256Hex(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
