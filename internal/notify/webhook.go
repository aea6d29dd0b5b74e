package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-audiorouter/internal/util"
)

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event             string  `json:"event"`
	StreamID          string  `json:"stream_id,omitempty"`
	DeviceError       string  `json:"device_error,omitempty"`
	SilenceDurationMs int64   `json:"silence_duration_ms,omitempty"`
	Level             float64 `json:"level,omitempty"`
	Threshold         float64 `json:"threshold,omitempty"`
	Message           string  `json:"message,omitempty"`
	Timestamp         string  `json:"timestamp"`
}

// SendSilenceWebhook notifies the configured webhook of confirmed silence
// on a stream.
func SendSilenceWebhook(webhookURL, streamID string, level, threshold float64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "silence_detected",
		StreamID:  streamID,
		Level:     level,
		Threshold: threshold,
		Timestamp: timestampUTC(),
	})
}

// SendRecoveryWebhook notifies the configured webhook that a stream
// recovered from silence.
func SendRecoveryWebhook(webhookURL, streamID string, durationMs int64, level, threshold float64) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:             "silence_recovered",
		StreamID:          streamID,
		SilenceDurationMs: durationMs,
		Level:             level,
		Threshold:         threshold,
		Timestamp:         timestampUTC(),
	})
}

// SendDeviceLostWebhook notifies the configured webhook that a stream's
// device disappeared mid-stream.
func SendDeviceLostWebhook(webhookURL, streamID string, deviceErr error) error {
	return sendWebhook(webhookURL, &WebhookPayload{
		Event:       "device_lost",
		StreamID:    streamID,
		DeviceError: deviceErr.Error(),
		Timestamp:   timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(webhookURL, stationName string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	return sendWebhook(webhookURL, &WebhookPayload{
		Event:     "test",
		Message:   "This is a test notification from " + stationName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(webhookURL string, payload *WebhookPayload) error {
	if !util.IsConfigured(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	client := &http.Client{Timeout: 10000 * time.Millisecond}
	resp, err := client.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
