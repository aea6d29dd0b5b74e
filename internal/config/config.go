// Package config provides application configuration management.
package config

import (
	"cmp"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sync"

	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
	"github.com/oszuidwest/zwfm-audiorouter/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort           = 8080
	DefaultWebUsername       = "admin"
	DefaultWebPassword       = "router"
	DefaultSilenceThreshold  = 0.001 // Linear RMS, roughly -60 dBFS
	DefaultSilenceDurationMs = 15000 // 15 seconds in milliseconds
	DefaultSilenceRecoveryMs = 5000  // 5 seconds in milliseconds
	DefaultStationName       = "ZuidWest FM"
	DefaultStationColorLight = "#E6007E"
	DefaultStationColorDark  = "#E6007E"
)

// Validation patterns define regular expressions for configuration value validation.
var (
	// Station name: any printable characters except control chars
	stationNamePattern  = regexp.MustCompile(`^[^\x00-\x1F\x7F]+$`)
	stationColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	Port     int    `json:"port"`     // HTTP server port
	Username string `json:"username"` // Login username
	Password string `json:"password"` // Login password
}

// WebConfig holds station branding settings.
type WebConfig struct {
	StationName string `json:"station_name"` // Station display name
	ColorLight  string `json:"color_light"`  // Theme color for light mode (#RRGGBB)
	ColorDark   string `json:"color_dark"`   // Theme color for dark mode (#RRGGBB)
}

// AudioConfig holds the persisted audio module settings. Routes are
// route templates only: streams, controls, and meters are runtime state
// and are never written to disk.
type AudioConfig struct {
	Enabled      *bool            `json:"enabled,omitempty"` // Module feature switch (default on)
	Defaults     types.Defaults   `json:"defaults"`          // Default device selection
	DuplexPolicy types.PolicyMode `json:"duplex_policy"`     // Gating policy
	Routes       []types.Route    `json:"routes"`            // Persisted route templates
}

// SilenceDetectionConfig holds silence detection thresholds and timing parameters.
type SilenceDetectionConfig struct {
	Threshold  float64 `json:"threshold"`   // Linear RMS silence threshold
	DurationMs int64   `json:"duration_ms"` // Duration below threshold before silence alert
	RecoveryMs int64   `json:"recovery_ms"` // Duration above threshold before recovery
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url"` // Webhook URL for silence and device alerts
}

// LogConfig holds event log settings.
type LogConfig struct {
	Path string `json:"path"` // Event log file path
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"` // Webhook settings
	Log     LogConfig     `json:"log"`     // Event log settings
}

// UploadConfig holds S3 settings for uploading finished recordings.
type UploadConfig struct {
	Enabled         bool   `json:"enabled"`           // Whether recordings are uploaded
	Endpoint        string `json:"endpoint"`          // S3-compatible endpoint URL
	Bucket          string `json:"bucket"`            // Bucket name
	AccessKeyID     string `json:"access_key_id"`     // Access key ID
	SecretAccessKey string `json:"secret_access_key"` // Secret access key
	Prefix          string `json:"prefix"`            // Object key prefix
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System           SystemConfig           `json:"system"`
	Web              WebConfig              `json:"web"`
	Audio            AudioConfig            `json:"audio"`
	SilenceDetection SilenceDetectionConfig `json:"silence_detection"`
	Notifications    NotificationsConfig    `json:"notifications"`
	Upload           UploadConfig           `json:"upload"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port:     DefaultWebPort,
			Username: DefaultWebUsername,
			Password: DefaultWebPassword,
		},
		Web: WebConfig{
			StationName: DefaultStationName,
			ColorLight:  DefaultStationColorLight,
			ColorDark:   DefaultStationColorDark,
		},
		Audio: AudioConfig{
			DuplexPolicy: types.PolicyAllowOverlap,
			Routes:       []types.Route{},
		},
		SilenceDetection: SilenceDetectionConfig{},
		Notifications:    NotificationsConfig{},
		filePath:         filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	if err := c.validate(); err != nil {
		return err
	}

	return nil
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	name := c.Web.StationName
	if name == "" || len(name) > 30 || !stationNamePattern.MatchString(name) {
		return fmt.Errorf("invalid station_name %q: must be 1-30 printable characters", name)
	}
	if !stationColorPattern.MatchString(c.Web.ColorLight) {
		return fmt.Errorf("invalid color_light %q: must be hex format (#RRGGBB)", c.Web.ColorLight)
	}
	if !stationColorPattern.MatchString(c.Web.ColorDark) {
		return fmt.Errorf("invalid color_dark %q: must be hex format (#RRGGBB)", c.Web.ColorDark)
	}
	if !types.ValidPolicyMode(c.Audio.DuplexPolicy) {
		return fmt.Errorf("invalid duplex_policy %q", c.Audio.DuplexPolicy)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	// System defaults
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.System.Username == "" {
		c.System.Username = DefaultWebUsername
	}
	if c.System.Password == "" {
		c.System.Password = DefaultWebPassword
	}
	// Web defaults
	if c.Web.StationName == "" {
		c.Web.StationName = DefaultStationName
	}
	if c.Web.ColorLight == "" {
		c.Web.ColorLight = DefaultStationColorLight
	}
	if c.Web.ColorDark == "" {
		c.Web.ColorDark = DefaultStationColorDark
	}
	// Audio defaults
	if c.Audio.DuplexPolicy == "" {
		c.Audio.DuplexPolicy = types.PolicyAllowOverlap
	}
	if c.Audio.Routes == nil {
		c.Audio.Routes = []types.Route{}
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Route persistence ---

// Routes returns a copy of the persisted route templates.
func (c *Config) Routes() []types.Route {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.Audio.Routes)
}

// SaveRoutes replaces the persisted route templates and saves.
func (c *Config) SaveRoutes(routes []types.Route) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.Routes = slices.Clone(routes)
	return c.saveLocked()
}

// --- Getters for individual settings ---

// ModuleEnabled reports whether the audio module is switched on.
func (c *Config) ModuleEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio.Enabled == nil || *c.Audio.Enabled
}

// AudioDefaults returns the default device selection.
func (c *Config) AudioDefaults() types.Defaults {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio.Defaults
}

// DuplexPolicy returns the persisted gating policy.
func (c *Config) DuplexPolicy() types.PolicyMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Audio.DuplexPolicy
}

// LogPath returns the configured event log file path.
func (c *Config) LogPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Notifications.Log.Path
}

// --- Setters for individual settings ---

// SetModuleEnabled updates the module feature switch and saves.
func (c *Config) SetModuleEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.Enabled = &enabled
	return c.saveLocked()
}

// SetAudioDefaults updates the default device selection and saves.
func (c *Config) SetAudioDefaults(defaults types.Defaults) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.Defaults = defaults
	return c.saveLocked()
}

// SetDuplexPolicy updates the gating policy and saves.
func (c *Config) SetDuplexPolicy(mode types.PolicyMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Audio.DuplexPolicy = mode
	return c.saveLocked()
}

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// SetLogPath updates the event log file path and saves the configuration.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Log.Path = path
	return c.saveLocked()
}

// SetSilenceThreshold updates the silence detection threshold and saves.
func (c *Config) SetSilenceThreshold(threshold float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SilenceDetection.Threshold = threshold
	return c.saveLocked()
}

// SetUpload updates the recording upload settings and saves.
func (c *Config) SetUpload(upload UploadConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Upload = upload
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort     int
	WebUser     string
	WebPassword string

	// Web/Branding
	StationName       string
	StationColorLight string
	StationColorDark  string

	// Audio
	ModuleEnabled bool
	AudioDefaults types.Defaults
	DuplexPolicy  types.PolicyMode
	Routes        []types.Route

	// Silence Detection
	SilenceThreshold  float64
	SilenceDurationMs int64
	SilenceRecoveryMs int64

	// Notifications
	WebhookURL string
	LogPath    string

	// Upload
	Upload UploadConfig
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// System
		WebPort:     c.System.Port,
		WebUser:     c.System.Username,
		WebPassword: c.System.Password,

		// Web/Branding
		StationName:       c.Web.StationName,
		StationColorLight: c.Web.ColorLight,
		StationColorDark:  c.Web.ColorDark,

		// Audio
		ModuleEnabled: c.Audio.Enabled == nil || *c.Audio.Enabled,
		AudioDefaults: c.Audio.Defaults,
		DuplexPolicy:  c.Audio.DuplexPolicy,
		Routes:        slices.Clone(c.Audio.Routes),

		// Silence Detection (with defaults)
		SilenceThreshold:  cmp.Or(c.SilenceDetection.Threshold, DefaultSilenceThreshold),
		SilenceDurationMs: cmp.Or(c.SilenceDetection.DurationMs, DefaultSilenceDurationMs),
		SilenceRecoveryMs: cmp.Or(c.SilenceDetection.RecoveryMs, DefaultSilenceRecoveryMs),

		// Notifications
		WebhookURL: c.Notifications.Webhook.URL,
		LogPath:    c.Notifications.Log.Path,

		// Upload
		Upload: c.Upload,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasLogPath reports whether a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// HasUpload reports whether recording uploads are fully configured.
func (s *Snapshot) HasUpload() bool {
	return s.Upload.Enabled && s.Upload.Bucket != "" &&
		s.Upload.AccessKeyID != "" && s.Upload.SecretAccessKey != ""
}

// GenerateAPIKey generates a new random 32-character alphanumeric API key.
func GenerateAPIKey() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 32
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		result[i] = chars[n.Int64()]
	}
	return string(result), nil
}
