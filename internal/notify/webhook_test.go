package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func webhookRecorder(t *testing.T) (*httptest.Server, *[]WebhookPayload) {
	t.Helper()
	var received []WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		received = append(received, p)
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func TestSendSilenceWebhook(t *testing.T) {
	srv, received := webhookRecorder(t)

	if err := SendSilenceWebhook(srv.URL, "s1", 0.0005, 0.001); err != nil {
		t.Fatal(err)
	}
	if len(*received) != 1 {
		t.Fatalf("received %d payloads, want 1", len(*received))
	}
	p := (*received)[0]
	if p.Event != "silence_detected" {
		t.Errorf("Event = %q, want silence_detected", p.Event)
	}
	if p.StreamID != "s1" {
		t.Errorf("StreamID = %q, want s1", p.StreamID)
	}
	if p.Threshold != 0.001 {
		t.Errorf("Threshold = %v, want 0.001", p.Threshold)
	}
	if p.Timestamp == "" {
		t.Error("Timestamp is empty")
	}
}

func TestSendRecoveryWebhook(t *testing.T) {
	srv, received := webhookRecorder(t)

	if err := SendRecoveryWebhook(srv.URL, "s1", 30000, 0.2, 0.001); err != nil {
		t.Fatal(err)
	}
	p := (*received)[0]
	if p.Event != "silence_recovered" {
		t.Errorf("Event = %q, want silence_recovered", p.Event)
	}
	if p.SilenceDurationMs != 30000 {
		t.Errorf("SilenceDurationMs = %d, want 30000", p.SilenceDurationMs)
	}
}

func TestSendDeviceLostWebhook(t *testing.T) {
	srv, received := webhookRecorder(t)

	if err := SendDeviceLostWebhook(srv.URL, "c1", errors.New("device unplugged")); err != nil {
		t.Fatal(err)
	}
	p := (*received)[0]
	if p.Event != "device_lost" {
		t.Errorf("Event = %q, want device_lost", p.Event)
	}
	if p.DeviceError != "device unplugged" {
		t.Errorf("DeviceError = %q", p.DeviceError)
	}
}

func TestSendWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := SendSilenceWebhook(srv.URL, "s1", 0, 0.001); err == nil {
		t.Error("SendSilenceWebhook() = nil error on 500 response")
	}
}

func TestSendWebhookUnconfigured(t *testing.T) {
	if err := SendSilenceWebhook("", "s1", 0, 0.001); err != nil {
		t.Errorf("unconfigured URL returned error %v, want silent skip", err)
	}
}

func TestSendTestWebhookRequiresURL(t *testing.T) {
	if err := SendTestWebhook("", "ZuidWest FM"); err == nil {
		t.Error("SendTestWebhook(\"\") = nil error, want failure")
	}
}
