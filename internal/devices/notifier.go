package devices

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
)

// WebhookNotifier POSTs low-battery alerts to a configured URL. Calls are
// best-effort with their own timeout; the device status response never waits
// on them.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    *slog.Logger

	nc      *nats.Conn
	subject string
}

// NewWebhookNotifier builds the notifier. url may be empty (alerts dropped);
// nc may be nil (no event publishing).
func NewWebhookNotifier(url string, client *http.Client, nc *nats.Conn, subject string, log *slog.Logger) *WebhookNotifier {
	if subject == "" {
		subject = "artframe.devices"
	}
	return &WebhookNotifier{url: url, client: client, log: log, nc: nc, subject: subject}
}

func (n *WebhookNotifier) LowBattery(deviceID string, percent float64) {
	n.Event(deviceID, "low_battery", map[string]any{"percent": percent})
	if n.url == "" {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"event":    "low_battery",
		"deviceId": deviceID,
		"percent":  percent,
		"at":       time.Now().UTC(),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("webhook delivery failed", "err", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.log.Warn("webhook rejected", "status", resp.StatusCode)
	}
}

// Event publishes a telemetry event to NATS when connected. Subjects are
// artframe.devices.<deviceId>.<kind>.
func (n *WebhookNotifier) Event(deviceID, kind string, detail map[string]any) {
	if n.nc == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"deviceId": deviceID,
		"event":    kind,
		"detail":   detail,
		"at":       time.Now().UTC(),
	})
	if err := n.nc.Publish(n.subject+"."+deviceID+"."+kind, payload); err != nil {
		n.log.Warn("event publish failed", "event", kind, "err", err)
	}
}

// NopNotifier drops everything; used in tests and when nothing is
// configured.
type NopNotifier struct{}

func (NopNotifier) LowBattery(string, float64)           {}
func (NopNotifier) Event(string, string, map[string]any) {}
