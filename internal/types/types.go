// Package types provides shared type definitions used across the audio router.
package types

import (
	"time"
)

// StreamState represents the lifecycle state of a stream.
type StreamState string

const (
	// StateStopped indicates the stream has no active data movement.
	StateStopped StreamState = "stopped"
	// StateRunning indicates the stream is actively moving audio frames.
	StateRunning StreamState = "running"
	// StatePaused indicates the stream is suspended but keeps its resources.
	StatePaused StreamState = "paused"
)

// Direction classifies a device or stream as capture or playback.
type Direction string

const (
	// DirectionCapture indicates audio flowing from hardware into the engine.
	DirectionCapture Direction = "capture"
	// DirectionPlayback indicates audio flowing from the engine to hardware.
	DirectionPlayback Direction = "playback"
)

// PolicyMode is the session-wide duplex gating policy.
type PolicyMode string

const (
	// PolicyAllowOverlap permits capture and playback to run concurrently.
	PolicyAllowOverlap PolicyMode = "allow_overlap"
	// PolicyCaptureGated blocks capture starts while playback is running.
	PolicyCaptureGated PolicyMode = "capture_gated_by_playback"
	// PolicyPlaybackGated blocks playback starts while capture is running.
	PolicyPlaybackGated PolicyMode = "playback_gated_by_capture"
	// PolicyBargeIn pauses running playback when capture starts.
	PolicyBargeIn PolicyMode = "barge_in_enabled"
)

// PolicyModes lists all accepted duplex policy modes.
var PolicyModes = []PolicyMode{
	PolicyAllowOverlap,
	PolicyCaptureGated,
	PolicyPlaybackGated,
	PolicyBargeIn,
}

// ValidPolicyMode reports whether mode is an accepted duplex policy.
func ValidPolicyMode(mode PolicyMode) bool {
	for _, m := range PolicyModes {
		if m == mode {
			return true
		}
	}
	return false
}

// NodeKind identifies the concrete variant of a route node.
type NodeKind string

// Source node kinds.
const (
	KindMic       NodeKind = "mic"
	KindLoopback  NodeKind = "loopback"
	KindFileInput NodeKind = "file_input"
	KindTestTone  NodeKind = "test_tone"
	KindTTS       NodeKind = "tts"
)

// Processor node kinds.
const (
	KindASRIngress   NodeKind = "asr_ingress"
	KindTTSFormatter NodeKind = "tts_egress_formatter"
	KindResampler    NodeKind = "resampler"
	KindPassthrough  NodeKind = "passthrough"
)

// Sink node kinds.
const (
	KindASR           NodeKind = "asr"
	KindSpeakers      NodeKind = "speakers"
	KindFile          NodeKind = "file"
	KindVirtualOutput NodeKind = "virtual_output"
)

// Role sets used by graph validation.
var (
	// SourceKinds contains the node kinds accepted in the source position.
	SourceKinds = map[NodeKind]bool{KindMic: true, KindLoopback: true, KindFileInput: true, KindTestTone: true, KindTTS: true}
	// ProcessorKinds contains the node kinds accepted in the processor chain.
	ProcessorKinds = map[NodeKind]bool{KindASRIngress: true, KindTTSFormatter: true, KindResampler: true, KindPassthrough: true}
	// SinkKinds contains the node kinds accepted in the sink position.
	SinkKinds = map[NodeKind]bool{KindASR: true, KindSpeakers: true, KindFile: true, KindVirtualOutput: true}
)

// Node is one element of a route: a source, processor, or sink.
type Node struct {
	Kind     NodeKind       `json:"kind"`                // Node variant within its role
	Name     string         `json:"name,omitempty"`      // Display name
	DeviceID string         `json:"device_id,omitempty"` // Device reference (empty = session default)
	Config   map[string]any `json:"config,omitempty"`    // Kind-specific settings
}

// ConfigInt returns an integer config value, falling back to def.
func (n *Node) ConfigInt(key string, def int) int {
	switch v := n.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// ConfigFloat returns a float config value, falling back to def.
func (n *Node) ConfigFloat(key string, def float64) float64 {
	switch v := n.Config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// ConfigString returns a string config value, falling back to def.
func (n *Node) ConfigString(key, def string) string {
	if v, ok := n.Config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Route is a configured path from a source through an optional processor
// chain to a sink.
type Route struct {
	RouteID    string `json:"route_id"`             // Unique identifier
	Name       string `json:"name,omitempty"`       // Display name
	Source     Node   `json:"source"`               // Exactly one source
	Processors []Node `json:"processors"`           // Zero or more processors, applied in order
	Sink       Node   `json:"sink"`                 // Exactly one sink
	Enabled    bool   `json:"enabled"`              // Whether the route may be started
	CreatedAt  int64  `json:"created_at,omitempty"` // Unix timestamp of first upsert
}

// Direction derives the stream direction for the route: capture when the
// source reads from hardware, playback otherwise.
func (r *Route) Direction() Direction {
	if r.Source.Kind == KindMic || r.Source.Kind == KindLoopback {
		return DirectionCapture
	}
	return DirectionPlayback
}

// HasASRIngress reports whether frames on this route cross the ASR boundary.
func (r *Route) HasASRIngress() bool {
	if r.Sink.Kind == KindASR {
		return true
	}
	for i := range r.Processors {
		if r.Processors[i].Kind == KindASRIngress {
			return true
		}
	}
	return false
}

// Stream is the runtime instantiation of a route. There is at most one
// stream per route and its id equals the route id.
type Stream struct {
	StreamID       string      `json:"stream_id"`       // Equals RouteID
	RouteID        string      `json:"route_id"`        // Owning route
	Direction      Direction   `json:"direction"`       // Derived from the route
	State          StreamState `json:"state"`           // Current lifecycle state
	LastTransition time.Time   `json:"last_transition"` // Time of the last state change
}

// Control holds per-stream gain and mute settings. A missing record
// implies unity gain and unmuted.
type Control struct {
	StreamID string  `json:"stream_id"` // Stream the control applies to
	GainDB   float64 `json:"gain_db"`   // Gain in dB, 0 = unity
	Muted    bool    `json:"muted"`     // True silences the stream
}

// Meter is a live amplitude snapshot for a running stream. Meters are
// overwritten at frame cadence and never persisted.
type Meter struct {
	StreamID  string    `json:"stream_id"`  // Stream the meter belongs to
	Peak      float64   `json:"peak"`       // Peak amplitude in [0,1]
	HeldPeak  float64   `json:"held_peak"`  // Slow-decay peak for VU displays
	RMS       float64   `json:"rms"`        // RMS amplitude in [0,1]
	Clipped   bool      `json:"clipped"`    // True if any sample hit full scale
	UpdatedAt time.Time `json:"updated_at"` // Time of the last update
}

// Device is an immutable snapshot of a host audio device, refreshed on
// each catalog query.
type Device struct {
	ID         string    `json:"id"`          // Device identifier
	Name       string    `json:"name"`        // Device display name
	Direction  Direction `json:"direction"`   // capture or playback
	Channels   int       `json:"channels"`    // Maximum channel count
	SampleRate float64   `json:"sample_rate"` // Default sample rate in Hz
}

// Defaults holds the session default device selection.
type Defaults struct {
	InputDeviceID  string `json:"default_input_device_id,omitempty"`  // Default capture device
	OutputDeviceID string `json:"default_output_device_id,omitempty"` // Default playback device
}

// Audio format constants for the engine.
const (
	// DefaultSampleRate is used when a route does not configure one.
	DefaultSampleRate = 16000
	// DefaultChannels is the default channel count for streams.
	DefaultChannels = 1
	// DefaultBlockSize is the frame block size in samples per channel.
	DefaultBlockSize = 1024
	// ASRSampleRate is the mandatory sample rate at the ASR ingress boundary.
	ASRSampleRate = 16000
)

// Engine timing constants.
const (
	// MeterInterval is the minimum interval between meter publications.
	MeterInterval = 50 * time.Millisecond
	// DeviceOpenTimeout bounds device-open attempts before failing.
	DeviceOpenTimeout = 5000 * time.Millisecond
	// WorkerJoinTimeout bounds worker teardown on stop.
	WorkerJoinTimeout = 1500 * time.Millisecond
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3000 * time.Millisecond
	// PollInterval is the interval for polling worker state.
	PollInterval = 50 * time.Millisecond
)

// Engine capacity constants.
const (
	// ASRBufferFrames is the capacity of the per-stream ASR frame buffer.
	ASRBufferFrames = 64
	// ASRDispatchEvery is the default adapter dispatch interval in frames.
	ASRDispatchEvery = 8
)

// ModuleSnapshot is a consistent point-in-time read of the whole audio
// module, assembled for API consumers. It mirrors component state and
// holds no authority of its own.
type ModuleSnapshot struct {
	Enabled       bool               `json:"audio_enabled"`       // Module feature switch
	Defaults      Defaults           `json:"defaults"`            // Default device selection
	DuplexPolicy  PolicyMode         `json:"duplex_policy"`       // Active gating mode
	PushToTalk    bool               `json:"push_to_talk"`        // Global push-to-talk state
	Routes        []Route            `json:"routes"`              // All routes, insertion order
	Streams       []Stream           `json:"streams"`             // All stream records
	Controls      []Control          `json:"controls"`            // All control records
	Meters        []Meter            `json:"meters"`              // Meters for running streams only
	EngineRunning bool               `json:"engine_running"`      // Whether any worker is live
	Underruns     map[string]int64   `json:"underruns,omitempty"` // Playback underrun counts for live workers
	Diagnostics   AdapterDiagnostics `json:"adapter_diagnostics"` // Last model adapter results
}

// AdapterDiagnostics carries the most recent model adapter result per stream.
type AdapterDiagnostics struct {
	ASR map[string]string `json:"asr,omitempty"` // Stream id to last ASR dispatch status
	TTS map[string]string `json:"tts,omitempty"` // Route id to last TTS synthesis status
}

// StartResult reports the outcome of a stream start, including any
// playback streams interrupted by barge-in.
type StartResult struct {
	Stream        Stream   `json:"stream"`                 // Post-transition stream record
	Interrupted   []string `json:"interrupted_stream_ids"` // Streams paused by barge-in
	EngineRunning bool     `json:"engine_running"`         // Engine active flag after start
}

// WSStatusResponse is sent to clients with full module status.
type WSStatusResponse struct {
	Type     string         `json:"type"`     // Message type identifier
	Snapshot ModuleSnapshot `json:"snapshot"` // Full module snapshot
	Devices  []Device       `json:"devices"`  // Current device catalog
	Version  VersionInfo    `json:"version"`  // Version information
}

// WSMetersResponse is sent to clients with live meter updates.
type WSMetersResponse struct {
	Type          string  `json:"type"`           // Message type identifier
	Meters        []Meter `json:"meters"`         // Meters for running streams
	EngineRunning bool    `json:"engine_running"` // Engine active flag
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
