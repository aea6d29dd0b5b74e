// Package notify delivers stream alerts to webhook endpoints and the
// event log.
package notify

import (
	"sync"

	"github.com/oszuidwest/zwfm-audiorouter/internal/audio"
	"github.com/oszuidwest/zwfm-audiorouter/internal/config"
	"github.com/oszuidwest/zwfm-audiorouter/internal/events"
	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
	"github.com/oszuidwest/zwfm-audiorouter/internal/util"
)

// Notifier fans stream events out to the configured channels. Silence
// alerts are tracked per stream so one stuck stream cannot suppress
// alerts for another. It is safe for concurrent use.
type Notifier struct {
	cfg    *config.Config
	log    *events.Logger
	mu     sync.Mutex
	silent map[string]bool // streams with an active silence alert
}

// NewNotifier returns a Notifier over the given config. The event logger
// may be nil when no log path is configured.
func NewNotifier(cfg *config.Config, log *events.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		log:    log,
		silent: make(map[string]bool),
	}
}

// HandleTransition records a stream lifecycle change in the event log.
// Stopping a stream also clears its silence tracking.
func (n *Notifier) HandleTransition(streamID string, state types.StreamState) {
	var event events.EventType
	switch state {
	case types.StateRunning:
		event = events.EventStarted
	case types.StatePaused:
		event = events.EventPaused
	case types.StateStopped:
		event = events.EventStopped
		n.Reset(streamID)
	default:
		return
	}

	n.logEvent(&events.StreamEvent{
		StreamID: streamID,
		Event:    event,
	})
}

// HandleSilence processes a silence transition for a stream.
func (n *Notifier) HandleSilence(streamID string, ev audio.SilenceEvent) {
	cfg := n.cfg.Snapshot()

	if ev.JustEntered {
		n.mu.Lock()
		already := n.silent[streamID]
		n.silent[streamID] = true
		n.mu.Unlock()
		if already {
			return
		}

		n.logEvent(&events.StreamEvent{
			StreamID: streamID,
			Event:    events.EventSilenceStart,
		})
		if cfg.HasWebhook() {
			go util.LogNotifyResult(
				func() error {
					return SendSilenceWebhook(cfg.WebhookURL, streamID, ev.CurrentLevel, cfg.SilenceThreshold)
				},
				"Silence webhook",
			)
		}
	}

	if ev.JustRecovered {
		n.mu.Lock()
		wasSilent := n.silent[streamID]
		delete(n.silent, streamID)
		n.mu.Unlock()
		if !wasSilent {
			return
		}

		n.logEvent(&events.StreamEvent{
			StreamID:   streamID,
			Event:      events.EventSilenceEnd,
			DurationMs: ev.TotalDurationMs,
		})
		if cfg.HasWebhook() {
			go util.LogNotifyResult(
				func() error {
					return SendRecoveryWebhook(cfg.WebhookURL, streamID, ev.TotalDurationMs, ev.CurrentLevel, cfg.SilenceThreshold)
				},
				"Recovery webhook",
			)
		}
	}
}

// HandleBargeIn records which playback streams a capture start paused.
func (n *Notifier) HandleBargeIn(streamID string, interrupted []string) {
	n.logEvent(&events.StreamEvent{
		StreamID:    streamID,
		Event:       events.EventBargeIn,
		Interrupted: interrupted,
	})
}

// HandleUnderrun records a worker's playback underrun total at stop.
func (n *Notifier) HandleUnderrun(streamID string, count int64) {
	n.logEvent(&events.StreamEvent{
		StreamID: streamID,
		Event:    events.EventUnderrun,
		Count:    count,
	})
}

// HandleDeviceLost processes a mid-stream device failure.
func (n *Notifier) HandleDeviceLost(streamID string, err error) {
	n.logEvent(&events.StreamEvent{
		StreamID: streamID,
		Event:    events.EventDeviceLost,
		Error:    err.Error(),
	})

	cfg := n.cfg.Snapshot()
	if cfg.HasWebhook() {
		go util.LogNotifyResult(
			func() error { return SendDeviceLostWebhook(cfg.WebhookURL, streamID, err) },
			"Device lost webhook",
		)
	}
}

// Reset clears silence tracking for a stream, called when it stops.
func (n *Notifier) Reset(streamID string) {
	n.mu.Lock()
	delete(n.silent, streamID)
	n.mu.Unlock()
}

func (n *Notifier) logEvent(ev *events.StreamEvent) {
	if n.log == nil {
		return
	}
	_ = n.log.Log(ev) //nolint:errcheck // Event log failures must not affect streaming
}
