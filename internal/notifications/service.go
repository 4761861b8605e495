package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Salamek/netkeeper/internal/config"
)

const userAgent = "netkeeper/1.0.0"

const defaultServer = "https://ntfy.sh/"

// Service defines the notification surface exposed to the monitoring loop.
type Service interface {
	NotifyBreach(ctx context.Context, failPct, threshold int, failed []string) error
	NotifyRecovery(ctx context.Context, recovered bool, waited time.Duration, serviceFailures []string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: endpointFor(topic),
		client:   client,
	}
}

// endpointFor treats a bare topic as a topic on the public ntfy server and
// passes full URLs through for self-hosted instances.
func endpointFor(topic string) string {
	if strings.Contains(topic, "://") {
		return topic
	}
	return defaultServer + topic
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyBreach(ctx context.Context, failPct, threshold int, failed []string) error {
	message := fmt.Sprintf("Connectivity check failed: %d%% of targets unreachable (threshold %d%%)", failPct, threshold)
	if len(failed) > 0 {
		message = fmt.Sprintf("%s\nFailed: %s", message, strings.Join(failed, ", "))
	}
	data := payload{
		title:    "Netkeeper - Connectivity Lost",
		message:  message,
		tags:     []string{"netkeeper", "warning"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRecovery(ctx context.Context, recovered bool, waited time.Duration, serviceFailures []string) error {
	waited = waited.Round(time.Second)
	if waited < 0 {
		waited = 0
	}

	var data payload
	if recovered {
		message := fmt.Sprintf("Connectivity restored after %s", waited)
		if len(serviceFailures) > 0 {
			message = fmt.Sprintf("%s\nUnits still failing: %s", message, strings.Join(serviceFailures, ", "))
		}
		data = payload{
			title:   "Netkeeper - Recovered",
			message: message,
			tags:    []string{"netkeeper", "white_check_mark"},
		}
	} else {
		data = payload{
			title:    "Netkeeper - Recovery Failed",
			message:  fmt.Sprintf("Connectivity not restored after %s; manual intervention may be needed", waited),
			tags:     []string{"netkeeper", "rotating_light"},
			priority: "high",
		}
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Netkeeper - Test",
		message:  "Notification system test",
		tags:     []string{"netkeeper", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyBreach(context.Context, int, int, []string) error { return nil }
func (noopService) NotifyRecovery(context.Context, bool, time.Duration, []string) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
