// Package notify sends sync failure alerts to a configured webhook. Alerts
// are rate limited per user so a stuck account does not flood the channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultCooldown = 30 * time.Minute

// Notifier sends alert notifications.
type Notifier struct {
	webhookURL string
	cooldown   time.Duration
	httpClient *http.Client

	// Track last alert time per user to implement cooldown
	mu             sync.Mutex
	lastAlertTimes map[string]time.Time
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithCooldown sets the minimum gap between alerts for the same user.
func WithCooldown(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.cooldown = d
		}
	}
}

// New creates a new Notifier. An empty webhook URL yields a notifier that
// silently drops alerts.
func New(webhookURL string, opts ...Option) *Notifier {
	n := &Notifier{
		webhookURL: webhookURL,
		cooldown:   defaultCooldown,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		lastAlertTimes: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// IsEnabled returns true if a webhook is configured.
func (n *Notifier) IsEnabled() bool {
	return n.webhookURL != ""
}

// ValidateWebhookURL validates that a webhook URL is safe to use.
func ValidateWebhookURL(webhookURL string) error {
	parsed, err := url.Parse(webhookURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	// Only allow HTTPS for webhooks (security requirement)
	if parsed.Scheme != "https" {
		return fmt.Errorf("webhook URL must use HTTPS")
	}

	// Block localhost and private IP ranges to prevent SSRF
	host := strings.ToLower(parsed.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return fmt.Errorf("webhook URL cannot point to localhost")
	}

	// Block common internal hostnames
	if strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("webhook URL cannot point to internal hosts")
	}

	// Block private IP ranges (10.x.x.x, 172.16-31.x.x, 192.168.x.x)
	if strings.HasPrefix(host, "10.") || strings.HasPrefix(host, "192.168.") {
		return fmt.Errorf("webhook URL cannot point to private IP addresses")
	}
	for i := 16; i <= 31; i++ {
		if strings.HasPrefix(host, fmt.Sprintf("172.%d.", i)) {
			return fmt.Errorf("webhook URL cannot point to private IP addresses")
		}
	}

	return nil
}

// SyncFailed reports a sync pass that ended with failures. Returns true if
// an alert was sent, false when disabled or still in cooldown.
func (n *Notifier) SyncFailed(ctx context.Context, userID, message string, errors []string) bool {
	if !n.IsEnabled() {
		return false
	}

	n.mu.Lock()
	if last, exists := n.lastAlertTimes[userID]; exists && time.Since(last) < n.cooldown {
		n.mu.Unlock()
		return false
	}
	n.lastAlertTimes[userID] = time.Now()
	n.mu.Unlock()

	// Send in background to not block the sync path
	go func() {
		if err := n.sendWebhook(ctx, userID, message, errors); err != nil {
			log.Printf("[Notify] Webhook error: %v", err)
		}
	}()
	return true
}

// WebhookPayload is the JSON payload sent to webhooks.
type WebhookPayload struct {
	AlertType string   `json:"alert_type"`
	UserID    string   `json:"user_id"`
	Message   string   `json:"message"`
	Errors    []string `json:"errors,omitempty"`
	Timestamp string   `json:"timestamp"`
	// Slack-compatible field
	Text string `json:"text,omitempty"`
}

func (n *Notifier) sendWebhook(ctx context.Context, userID, message string, errors []string) error {
	details := strings.Join(errors, "\n")
	payload := WebhookPayload{
		AlertType: "sync_failure",
		UserID:    userID,
		Message:   message,
		Errors:    errors,
		Timestamp: time.Now().Format(time.RFC3339),
		Text:      fmt.Sprintf(":warning: *Shift sync failed*\n%s\n%s", message, details),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	log.Printf("[Notify] Webhook sent for user %s", userID)
	return nil
}

// SendTestWebhook sends a test message to a webhook URL.
func (n *Notifier) SendTestWebhook(ctx context.Context, webhookURL string) error {
	if err := ValidateWebhookURL(webhookURL); err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}

	payload := WebhookPayload{
		AlertType: "test",
		Message:   "Test webhook from gsv-sync",
		Timestamp: time.Now().Format(time.RFC3339),
		Text:      ":rocket: *Test webhook from gsv-sync*\nThis is a test message to verify your webhook configuration",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
