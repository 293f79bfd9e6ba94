package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"qline/internal/config"
)

const userAgent = "qline/0.1"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyJobEscalated(ctx context.Context, qlid, reason string) error
	NotifyJobCertified(ctx context.Context, qlid, serial, grade string) error
	NotifyJobCompleted(ctx context.Context, qlid, grade string) error
	NotifyJobFailedDisposition(ctx context.Context, qlid, disposition string) error
	NotifyPartsConsumed(ctx context.Context, qlid string, parts []string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
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

func (n *ntfyService) NotifyJobEscalated(ctx context.Context, qlid, reason string) error {
	message := fmt.Sprintf("Escalated: %s", qlid)
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\nReason: %s", message, reason)
	}
	return n.send(ctx, payload{
		title:    "qline - Escalated",
		message:  message,
		tags:     []string{"qline", "escalated"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyJobCertified(ctx context.Context, qlid, serial, grade string) error {
	return n.send(ctx, payload{
		title:   "qline - Certified",
		message: fmt.Sprintf("Certified: %s (%s, grade %s)", qlid, serial, grade),
		tags:    []string{"qline", "certified"},
	})
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, qlid, grade string) error {
	message := fmt.Sprintf("Completed: %s", qlid)
	if grade != "" {
		message = fmt.Sprintf("%s (grade %s)", message, grade)
	}
	return n.send(ctx, payload{
		title:   "qline - Complete",
		message: message,
		tags:    []string{"qline", "completed"},
	})
}

func (n *ntfyService) NotifyJobFailedDisposition(ctx context.Context, qlid, disposition string) error {
	message := fmt.Sprintf("Failed disposition: %s", qlid)
	if disposition = strings.TrimSpace(disposition); disposition != "" {
		message = fmt.Sprintf("%s (%s)", message, disposition)
	}
	return n.send(ctx, payload{
		title:    "qline - Failed",
		message:  message,
		tags:     []string{"qline", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyPartsConsumed(ctx context.Context, qlid string, parts []string) error {
	if len(parts) == 0 {
		return nil
	}
	return n.send(ctx, payload{
		title:   "qline - Parts Consumed",
		message: fmt.Sprintf("Parts used on %s: %s", qlid, strings.Join(parts, ", ")),
		tags:    []string{"qline", "parts"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:   "qline - Test",
		message: "Notifications are configured correctly",
		tags:    []string{"qline", "test"},
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if data.title != "" {
		req.Header.Set("X-Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("X-Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("X-Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %s", resp.Status)
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyJobEscalated(context.Context, string, string) error { return nil }
func (noopService) NotifyJobCertified(context.Context, string, string, string) error {
	return nil
}
func (noopService) NotifyJobCompleted(context.Context, string, string) error         { return nil }
func (noopService) NotifyJobFailedDisposition(context.Context, string, string) error { return nil }
func (noopService) NotifyPartsConsumed(context.Context, string, []string) error      { return nil }
func (noopService) TestNotification(context.Context) error                           { return nil }
