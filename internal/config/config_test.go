package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

func TestNewDefaults(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "config.json"))

	if cfg.System.Port != DefaultWebPort {
		t.Errorf("Port = %d, want %d", cfg.System.Port, DefaultWebPort)
	}
	if cfg.Audio.DuplexPolicy != types.PolicyAllowOverlap {
		t.Errorf("DuplexPolicy = %s, want allow_overlap", cfg.Audio.DuplexPolicy)
	}
	if !cfg.ModuleEnabled() {
		t.Error("ModuleEnabled() = false, want true by default")
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path)

	if err := cfg.Load(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetDuplexPolicy(types.PolicyBargeIn); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetModuleEnabled(false); err != nil {
		t.Fatal(err)
	}
	routes := []types.Route{{
		RouteID: "r1",
		Source:  types.Node{Kind: types.KindTestTone},
		Sink:    types.Node{Kind: types.KindVirtualOutput},
		Enabled: true,
	}}
	if err := cfg.SaveRoutes(routes); err != nil {
		t.Fatal(err)
	}

	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if reloaded.DuplexPolicy() != types.PolicyBargeIn {
		t.Errorf("DuplexPolicy = %s, want barge_in_enabled", reloaded.DuplexPolicy())
	}
	if reloaded.ModuleEnabled() {
		t.Error("ModuleEnabled() = true, want false after save")
	}
	got := reloaded.Routes()
	if len(got) != 1 || got[0].RouteID != "r1" {
		t.Errorf("Routes() = %v, want one route r1", got)
	}
}

func TestLoadRejectsInvalidPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"audio": {"duplex_policy": "sideways"}}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := New(path)
	if err := cfg.Load(); err == nil {
		t.Error("Load() = nil error, want invalid duplex_policy failure")
	}
}

func TestLoadRejectsInvalidColor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"web": {"color_light": "magenta"}}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := New(path)
	if err := cfg.Load(); err == nil {
		t.Error("Load() = nil error, want invalid color_light failure")
	}
}

func TestSnapshotSilenceDefaults(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "config.json"))
	snap := cfg.Snapshot()

	if snap.SilenceThreshold != DefaultSilenceThreshold {
		t.Errorf("SilenceThreshold = %v, want %v", snap.SilenceThreshold, DefaultSilenceThreshold)
	}
	if snap.SilenceDurationMs != DefaultSilenceDurationMs {
		t.Errorf("SilenceDurationMs = %d, want %d", snap.SilenceDurationMs, DefaultSilenceDurationMs)
	}
	if snap.SilenceRecoveryMs != DefaultSilenceRecoveryMs {
		t.Errorf("SilenceRecoveryMs = %d, want %d", snap.SilenceRecoveryMs, DefaultSilenceRecoveryMs)
	}
}

func TestSnapshotHasHelpers(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "config.json"))

	snap := cfg.Snapshot()
	if snap.HasWebhook() || snap.HasLogPath() || snap.HasUpload() {
		t.Error("empty config reports configured channels")
	}

	if err := cfg.SetWebhookURL("https://example.com/hook"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetLogPath(filepath.Join(t.TempDir(), "events.log")); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetUpload(UploadConfig{
		Enabled:         true,
		Bucket:          "recordings",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	}); err != nil {
		t.Fatal(err)
	}

	snap = cfg.Snapshot()
	if !snap.HasWebhook() {
		t.Error("HasWebhook() = false")
	}
	if !snap.HasLogPath() {
		t.Error("HasLogPath() = false")
	}
	if !snap.HasUpload() {
		t.Error("HasUpload() = false, endpoint should be optional")
	}
}

func TestHasUploadRequiresCredentials(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.SetUpload(UploadConfig{Enabled: true, Bucket: "recordings"}); err != nil {
		t.Fatal(err)
	}
	if snap := cfg.Snapshot(); snap.HasUpload() {
		t.Error("HasUpload() = true without credentials")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if len(key) != 32 {
		t.Errorf("len(key) = %d, want 32", len(key))
	}
	other, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if key == other {
		t.Error("two generated keys are identical")
	}
}
