package server

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/oszuidwest/zwfm-audiorouter/internal/adapters"
	"github.com/oszuidwest/zwfm-audiorouter/internal/audio"
	"github.com/oszuidwest/zwfm-audiorouter/internal/config"
	"github.com/oszuidwest/zwfm-audiorouter/internal/engine"
	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

// fakeHandle satisfies audio.Handle without touching real devices.
type fakeHandle struct{}

func (fakeHandle) Start() error { return nil }
func (fakeHandle) Stop() error  { return nil }
func (fakeHandle) Close() error { return nil }

// fakeBackend provides one synthetic device per direction.
type fakeBackend struct {
	mu sync.Mutex
}

func (b *fakeBackend) Devices() ([]types.Device, error) {
	return []types.Device{
		{ID: "mic0", Name: "Test Mic", Direction: types.DirectionCapture, Channels: 1, SampleRate: 16000},
		{ID: "spk0", Name: "Test Speakers", Direction: types.DirectionPlayback, Channels: 2, SampleRate: 48000},
	}, nil
}

func (b *fakeBackend) DefaultDevice(dir types.Direction) (string, error) {
	if dir == types.DirectionCapture {
		return "mic0", nil
	}
	return "spk0", nil
}

func (b *fakeBackend) OpenCapture(deviceID string, format audio.Format, onFrame func([]float32), onErr func(error)) (audio.Handle, error) {
	return fakeHandle{}, nil
}

func (b *fakeBackend) OpenPlayback(deviceID string, format audio.Format, onFrame func([]float32), onErr func(error)) (audio.Handle, error) {
	return fakeHandle{}, nil
}

func (b *fakeBackend) OpenDuplex(inDeviceID, outDeviceID string, format audio.Format, onFrames func(in, out []float32), onErr func(error)) (audio.Handle, error) {
	return fakeHandle{}, nil
}

func (b *fakeBackend) Close() error { return nil }

func newTestHandler(t *testing.T) (*CommandHandler, *engine.Module) {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	module := engine.NewModule(cfg, &fakeBackend{}, adapters.NoopASR{}, adapters.ToneTTS{})
	t.Cleanup(module.Shutdown)
	return NewCommandHandler(cfg, module), module
}

// dispatch sends one command through the handler and returns the first
// response, if any.
func dispatch(t *testing.T, h *CommandHandler, cmdType, data string) any {
	t.Helper()
	send := make(chan any, 8)
	cmd := WSCommand{Type: cmdType}
	if data != "" {
		cmd.Data = json.RawMessage(data)
	}

	statusUpdates := 0
	h.Handle(cmd, send, func() { statusUpdates++ })
	if statusUpdates != 1 {
		t.Errorf("status update triggered %d times, want 1", statusUpdates)
	}

	select {
	case msg := <-send:
		return msg
	default:
		return nil
	}
}

// resultMap asserts the response is a success/error map and returns it.
func resultMap(t *testing.T, msg any) map[string]any {
	t.Helper()
	m, ok := msg.(map[string]any)
	if !ok {
		t.Fatalf("response = %T, want map[string]any", msg)
	}
	return m
}

func TestHandlePolicyUpdate(t *testing.T) {
	h, module := newTestHandler(t)

	res := resultMap(t, dispatch(t, h, "policy/update", `{"mode":"barge_in_enabled"}`))
	if res["success"] != true {
		t.Fatalf("response = %v, want success", res)
	}
	if module.Policy() != types.PolicyBargeIn {
		t.Errorf("Policy() = %s, want barge_in_enabled", module.Policy())
	}
}

func TestHandlePolicyUpdateRejectsUnknownMode(t *testing.T) {
	h, module := newTestHandler(t)

	res := resultMap(t, dispatch(t, h, "policy/update", `{"mode":"half_duplex"}`))
	if res["success"] != false {
		t.Fatalf("response = %v, want validation failure", res)
	}
	verr, ok := res["error"].(*types.ValidationError)
	if !ok {
		t.Fatalf("error = %T, want *types.ValidationError", res["error"])
	}
	if len(verr.Errors) != 1 || verr.Errors[0].Field != "mode" {
		t.Errorf("validation errors = %+v, want one on mode", verr.Errors)
	}
	if module.Policy() != types.PolicyAllowOverlap {
		t.Errorf("Policy() = %s, want unchanged", module.Policy())
	}
}

func TestHandlePTTUpdate(t *testing.T) {
	h, module := newTestHandler(t)

	res := resultMap(t, dispatch(t, h, "ptt/update", `{"active":true}`))
	if res["success"] != true {
		t.Fatalf("response = %v, want success", res)
	}
	if !module.PushToTalk() {
		t.Error("PushToTalk() = false after ptt/update")
	}
}

func TestHandleModuleUpdate(t *testing.T) {
	h, module := newTestHandler(t)

	res := resultMap(t, dispatch(t, h, "module/update", `{"enabled":false}`))
	if res["success"] != true {
		t.Fatalf("response = %v, want success", res)
	}
	if module.Enabled() {
		t.Error("Enabled() = true after module/update disabled")
	}
}

func TestHandleRouteAdd(t *testing.T) {
	h, module := newTestHandler(t)

	body := `{
		"name": "announcements",
		"source": {"kind": "test_tone"},
		"sink": {"kind": "virtual_output"}
	}`
	msg := dispatch(t, h, "routes/add", body)

	res, ok := msg.(struct {
		Type    string `json:"type"`
		Action  string `json:"action"`
		ID      string `json:"id,omitempty"`
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	})
	if !ok {
		t.Fatalf("response = %T, want entity result struct", msg)
	}
	if !res.Success || res.Action != "add" || res.ID == "" {
		t.Errorf("entity result = %+v", res)
	}
	if len(module.Routes()) != 1 {
		t.Errorf("Routes() = %d, want 1", len(module.Routes()))
	}
}

func TestHandleRouteAddRejectsBadTopology(t *testing.T) {
	h, module := newTestHandler(t)

	body := `{"source": {"kind": "speakers"}, "sink": {"kind": "file"}}`
	msg := dispatch(t, h, "routes/add", body)

	res, ok := msg.(struct {
		Type    string `json:"type"`
		Action  string `json:"action"`
		ID      string `json:"id,omitempty"`
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	})
	if !ok {
		t.Fatalf("response = %T, want entity result struct", msg)
	}
	if res.Success || res.Error == "" {
		t.Errorf("entity result = %+v, want failure with message", res)
	}
	if len(module.Routes()) != 0 {
		t.Error("invalid route was stored")
	}
}

func TestHandleRouteAddRequiresSource(t *testing.T) {
	h, _ := newTestHandler(t)

	res := resultMap(t, dispatch(t, h, "routes/add", `{"sink": {"kind": "file"}}`))
	if res["success"] != false {
		t.Fatalf("response = %v, want validation failure", res)
	}
}

func TestHandleRouteDeleteIdempotent(t *testing.T) {
	h, _ := newTestHandler(t)

	msg := dispatch(t, h, "routes/delete", `{"route_id": "never-existed"}`)
	res, ok := msg.(struct {
		Type    string `json:"type"`
		Action  string `json:"action"`
		ID      string `json:"id,omitempty"`
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	})
	if !ok {
		t.Fatalf("response = %T, want entity result struct", msg)
	}
	if !res.Success {
		t.Errorf("deleting an unknown route = %+v, want success", res)
	}
}

func TestHandleStreamLifecycle(t *testing.T) {
	h, module := newTestHandler(t)

	route := types.Route{
		RouteID: "p1",
		Source:  types.Node{Kind: types.KindTestTone, Config: map[string]any{"loop": true}},
		Sink:    types.Node{Kind: types.KindSpeakers},
		Enabled: true,
	}
	if _, err := module.UpsertRoute(route); err != nil {
		t.Fatal(err)
	}

	res := resultMap(t, dispatch(t, h, "streams/start", `{"stream_id": "p1"}`))
	if res["success"] != true {
		t.Fatalf("streams/start = %v, want success", res)
	}

	res = resultMap(t, dispatch(t, h, "streams/pause", `{"stream_id": "p1"}`))
	if res["success"] != true {
		t.Fatalf("streams/pause = %v, want success", res)
	}

	res = resultMap(t, dispatch(t, h, "streams/stop", `{"stream_id": "p1"}`))
	if res["success"] != true {
		t.Fatalf("streams/stop = %v, want success", res)
	}
}

func TestHandleStreamStartUnknown(t *testing.T) {
	h, _ := newTestHandler(t)

	res := resultMap(t, dispatch(t, h, "streams/start", `{"stream_id": "ghost"}`))
	if res["success"] != false {
		t.Fatalf("response = %v, want failure", res)
	}
	if res["error"] != types.ErrStreamNotFound.Error() {
		t.Errorf("error = %v, want stream not found", res["error"])
	}
}

func TestHandleControlUpdateBounds(t *testing.T) {
	h, _ := newTestHandler(t)

	res := resultMap(t, dispatch(t, h, "controls/update", `{"stream_id": "s1", "gain_db": 99}`))
	if res["success"] != false {
		t.Fatalf("response = %v, want validation failure", res)
	}
	verr, ok := res["error"].(*types.ValidationError)
	if !ok {
		t.Fatalf("error = %T, want *types.ValidationError", res["error"])
	}
	if verr.Errors[0].Field != "gain_db" {
		t.Errorf("field = %q, want gain_db", verr.Errors[0].Field)
	}
}

func TestHandleSilenceUpdateNoChange(t *testing.T) {
	h, _ := newTestHandler(t)

	res := resultMap(t, dispatch(t, h, "silence/update", `{}`))
	if res["success"] != true {
		t.Fatalf("response = %v, want success for empty update", res)
	}
	if got := h.cfg.Snapshot().SilenceThreshold; got != config.DefaultSilenceThreshold {
		t.Errorf("SilenceThreshold = %v, want untouched default", got)
	}
}

func TestHandleSilenceUpdateRejectsOutOfRange(t *testing.T) {
	h, _ := newTestHandler(t)

	res := resultMap(t, dispatch(t, h, "silence/update", `{"threshold": 2.5}`))
	if res["success"] != false {
		t.Fatalf("response = %v, want validation failure", res)
	}
}

func TestHandleInvalidJSON(t *testing.T) {
	h, _ := newTestHandler(t)

	res := resultMap(t, dispatch(t, h, "policy/update", `{bad json`))
	if res["success"] != false {
		t.Fatalf("response = %v, want failure for malformed JSON", res)
	}
	if fmt.Sprint(res["error"]) == "" {
		t.Error("error message is empty")
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	h, _ := newTestHandler(t)

	if msg := dispatch(t, h, "teleport/engage", `{}`); msg != nil {
		t.Errorf("unknown command produced response %v, want none", msg)
	}
}
