package server

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.

// --- Route entity ---

// NodeRequest describes one route node in a request body.
type NodeRequest struct {
	Kind     string         `json:"kind" validate:"required,max=64"`
	Name     string         `json:"name" validate:"omitempty,max=100"`
	DeviceID string         `json:"device_id" validate:"omitempty,max=64"`
	Config   map[string]any `json:"config" validate:"omitempty"`
}

// RouteRequest is the request body for routes/add and routes/update.
type RouteRequest struct {
	RouteID    string        `json:"route_id" validate:"omitempty,max=64"`
	Name       string        `json:"name" validate:"omitempty,max=100"`
	Source     NodeRequest   `json:"source" validate:"required"`
	Processors []NodeRequest `json:"processors" validate:"omitempty,max=8,dive"`
	Sink       NodeRequest   `json:"sink" validate:"required"`
	Enabled    *bool         `json:"enabled"`
}

// RouteDeleteRequest is the request body for routes/delete.
type RouteDeleteRequest struct {
	RouteID string `json:"route_id" validate:"required,max=64"`
}

// --- Stream lifecycle ---

// StreamRequest is the request body for streams/start, streams/pause,
// and streams/stop.
type StreamRequest struct {
	StreamID string `json:"stream_id" validate:"required,max=64"`
	Override bool   `json:"override"` // Bypass gated policy modes on start
}

// --- Policy ---

// PolicyUpdateRequest is the request body for policy/update.
type PolicyUpdateRequest struct {
	Mode string `json:"mode" validate:"required,oneof=allow_overlap capture_gated_by_playback playback_gated_by_capture barge_in_enabled"`
}

// --- Controls ---

// ControlUpdateRequest is the request body for controls/update.
type ControlUpdateRequest struct {
	StreamID string  `json:"stream_id" validate:"required,max=64"`
	GainDB   float64 `json:"gain_db" validate:"gte=-60,lte=20"`
	Muted    bool    `json:"muted"`
}

// --- Defaults ---

// DefaultsUpdateRequest is the request body for defaults/update.
type DefaultsUpdateRequest struct {
	InputDeviceID  string `json:"default_input_device_id" validate:"omitempty,max=64"`
	OutputDeviceID string `json:"default_output_device_id" validate:"omitempty,max=64"`
}

// --- Module switch ---

// ModuleUpdateRequest is the request body for module/update.
type ModuleUpdateRequest struct {
	Enabled bool `json:"enabled"`
}

// --- Push-to-talk ---

// PTTUpdateRequest is the request body for ptt/update.
type PTTUpdateRequest struct {
	Active bool `json:"active"`
}

// --- Silence detection settings ---

// SilenceUpdateRequest is the request body for silence/update.
type SilenceUpdateRequest struct {
	Threshold *float64 `json:"threshold" validate:"omitempty,gt=0,lte=1"`
}

// --- Notification settings ---

// WebhookUpdateRequest is the request body for notifications/webhook/update.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,max=2048"`
}

// LogUpdateRequest is the request body for notifications/log/update.
type LogUpdateRequest struct {
	Path string `json:"path" validate:"omitempty,max=4096"`
}

// --- Upload settings ---

// UploadUpdateRequest is the request body for upload/update.
type UploadUpdateRequest struct {
	Enabled         bool   `json:"enabled"`
	Endpoint        string `json:"endpoint" validate:"omitempty,max=2048"`
	Bucket          string `json:"bucket" validate:"omitempty,max=63"`
	AccessKeyID     string `json:"access_key_id" validate:"omitempty,max=128"`
	SecretAccessKey string `json:"secret_access_key" validate:"omitempty,max=256"`
	Prefix          string `json:"prefix" validate:"omitempty,max=512"`
}

// S3TestRequest is the request body for upload/test-s3.
type S3TestRequest struct {
	Endpoint  string `json:"endpoint" validate:"omitempty,max=2048"`
	Bucket    string `json:"bucket" validate:"required,max=63"`
	AccessKey string `json:"access_key_id" validate:"required,max=128"`
	SecretKey string `json:"secret_access_key" validate:"required,max=256"`
}
