package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertMQTTDisconnected    = "mqtt_disconnected"
	AlertPostgresUnavailable = "postgres_unavailable"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	Instance  string                 `json:"instance"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// outage tracks one dependency. It fires once the dependency has been down
// for delay, and once more when it recovers after having fired.
type outage struct {
	alert    string
	severity string
	label    string
	delay    time.Duration

	downSince time.Time
	fired     bool
}

// observe records the current state and returns the alert to send, if any.
func (o *outage) observe(up bool, now time.Time) (AlertPayload, bool) {
	if up {
		wasFired := o.fired
		o.downSince = time.Time{}
		o.fired = false
		if !wasFired {
			return AlertPayload{}, false
		}
		return AlertPayload{
			Event:    o.alert,
			Severity: SeverityInfo,
			Message:  o.label + " connection restored",
			Details:  map[string]interface{}{"recovered_at": now.UTC().Format(time.RFC3339)},
		}, true
	}

	if o.downSince.IsZero() {
		o.downSince = now
	}
	down := now.Sub(o.downSince)
	if o.fired || down < o.delay {
		return AlertPayload{}, false
	}
	o.fired = true
	return AlertPayload{
		Event:    o.alert,
		Severity: o.severity,
		Message:  o.label + " unavailable",
		Details: map[string]interface{}{
			"down_since":   o.downSince.UTC().Format(time.RFC3339),
			"down_seconds": int(down.Seconds()),
		},
	}, true
}

var (
	alertMu      sync.Mutex
	webhookURL   string
	instanceName string
	mqttOutage   = &outage{alert: AlertMQTTDisconnected, severity: SeverityWarning, label: "MQTT broker", delay: 30 * time.Second}
	pgOutage     = &outage{alert: AlertPostgresUnavailable, severity: SeverityCritical, label: "PostgreSQL", delay: 5 * time.Second}
	sendAlert    = postAlert
	// A flapping broker would otherwise post a pair of alerts every cycle.
	webhookLimit = newWebhookLimit()
)

// newWebhookLimit allows a burst of 4 posts, then one a minute.
func newWebhookLimit() *rate.Limiter {
	return rate.NewLimiter(rate.Every(time.Minute), 4)
}

// InitAlerts reads PCASSIST_ALERT_WEBHOOK_URL and the optional
// PCASSIST_MQTT_ALERT_DELAY / PCASSIST_POSTGRES_ALERT_DELAY durations.
func InitAlerts(instance string) {
	alertMu.Lock()
	defer alertMu.Unlock()

	instanceName = instance
	webhookURL = os.Getenv("PCASSIST_ALERT_WEBHOOK_URL")
	webhookLimit = newWebhookLimit()
	if d, err := time.ParseDuration(os.Getenv("PCASSIST_MQTT_ALERT_DELAY")); err == nil {
		mqttOutage.delay = d
	}
	if d, err := time.ParseDuration(os.Getenv("PCASSIST_POSTGRES_ALERT_DELAY")); err == nil {
		pgOutage.delay = d
	}

	if webhookURL != "" {
		log.Printf("Alerts enabled: webhook URL configured (mqtt_delay=%s, pg_delay=%s)",
			mqttOutage.delay, pgOutage.delay)
	}
}

// checkAlerts evaluates the required dependencies once. Optional ones never
// alert. Posts beyond the webhook rate limit are only logged.
func checkAlerts(now time.Time) {
	readiness.mu.RLock()
	mqttUp := readiness.mqttConnected || readiness.mqttOptional
	pgUp := readiness.postgresConnected || readiness.postgresOptional
	readiness.mu.RUnlock()

	alertMu.Lock()
	var pending []AlertPayload
	if a, ok := mqttOutage.observe(mqttUp, now); ok {
		pending = append(pending, a)
	}
	if a, ok := pgOutage.observe(pgUp, now); ok {
		pending = append(pending, a)
	}
	url, instance, limit := webhookURL, instanceName, webhookLimit
	alertMu.Unlock()

	for _, a := range pending {
		a.Instance = instance
		a.Timestamp = now.UTC().Format(time.RFC3339)
		if url == "" || !limit.AllowN(now, 1) {
			log.Printf("[ALERT] %s severity=%s msg=%q details=%v", a.Event, a.Severity, a.Message, a.Details)
			continue
		}
		go sendAlert(url, a)
	}
}

// postAlert performs the webhook POST.
func postAlert(url string, payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("alert: failed to marshal payload: %v", err)
		return
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("alert: webhook POST failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("alert: webhook returned status %d", resp.StatusCode)
	}
}

// RunAlertMonitor checks dependency state every interval until ctx is done.
func RunAlertMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			checkAlerts(now)
		}
	}
}
