package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-audiorouter/internal/adapters"
	"github.com/oszuidwest/zwfm-audiorouter/internal/audio"
	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

func newTestEngine(backend audio.Backend, hooks Hooks) *Engine {
	catalog := audio.NewCatalog(backend)
	return New(backend, catalog, audio.NewMeterStore(), audio.NewControlTable(),
		adapters.NoopASR{}, adapters.ToneTTS{}, adapters.NewDiagnostics(),
		audio.SilenceConfig{Threshold: 0.001, DurationMs: 15000, RecoveryMs: 5000}, hooks)
}

func TestToneToFileEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")

	finished := make(chan error, 1)
	recorded := make(chan string, 1)
	e := newTestEngine(newFakeBackend(), Hooks{
		StreamFinished:    func(streamID string, err error) { finished <- err },
		RecordingFinished: func(streamID, recPath string) { recorded <- recPath },
	})

	route := types.Route{
		RouteID: "r1",
		Source: types.Node{Kind: types.KindTestTone, Config: map[string]any{
			"tone_hz":          440.0,
			"amplitude":        0.5,
			"duration_seconds": 0.2,
		}},
		Sink:    types.Node{Kind: types.KindFile, Config: map[string]any{"path": path}},
		Enabled: true,
	}

	if err := e.StartWorker("r1", route, types.Defaults{}); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("stream finished with error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
	}

	if err := e.StopWorker("r1"); err != nil {
		t.Fatal(err)
	}

	var recPath string
	select {
	case recPath = <-recorded:
	case <-time.After(2 * time.Second):
		t.Fatal("recording was not finalized")
	}
	if recPath != path {
		t.Errorf("recording path = %q, want %q", recPath, path)
	}

	data, err := audio.ReadWAV(path)
	if err != nil {
		t.Fatal(err)
	}
	if data.SampleRate != types.DefaultSampleRate {
		t.Errorf("SampleRate = %d, want %d", data.SampleRate, types.DefaultSampleRate)
	}
	// 0.2 s at 16 kHz rounded up to whole blocks.
	if len(data.Samples) < 3200 {
		t.Errorf("len(Samples) = %d, want >= 3200", len(data.Samples))
	}

	var peak float32
	for _, s := range data.Samples {
		if s > peak {
			peak = s
		}
	}
	if peak < 0.4 {
		t.Errorf("peak = %v, want about 0.5 (tone amplitude)", peak)
	}
}

func TestCaptureFramesReachFileAndMeter(t *testing.T) {
	dir := t.TempDir()
	backend := newFakeBackend()
	e := newTestEngine(backend, Hooks{})

	route := captureRoute("c1", dir)
	if err := e.StartWorker("c1", route, types.Defaults{}); err != nil {
		t.Fatal(err)
	}

	frame := make([]float32, types.DefaultBlockSize)
	for i := range frame {
		frame[i] = 0.5
	}
	// Two frames slightly apart so the meter interval elapses.
	backend.pushCapture("mic0", frame)
	time.Sleep(types.MeterInterval + 20*time.Millisecond)
	backend.pushCapture("mic0", frame)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := e.meters.Get("c1"); ok || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	meter, ok := e.meters.Get("c1")
	if !ok {
		t.Fatal("no meter published for running capture stream")
	}
	if meter.Peak < 0.4 {
		t.Errorf("meter Peak = %v, want about 0.5", meter.Peak)
	}

	if err := e.StopWorker("c1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.meters.Get("c1"); ok {
		t.Error("meter still present after StopWorker")
	}

	data, err := audio.ReadWAV(filepath.Join(dir, "c1.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if len(data.Samples) == 0 {
		t.Error("no samples written to the file sink")
	}
}

func TestMutedStreamRecordsSilence(t *testing.T) {
	dir := t.TempDir()
	backend := newFakeBackend()
	e := newTestEngine(backend, Hooks{})
	e.controls.Set("c1", 0, true)

	if err := e.StartWorker("c1", captureRoute("c1", dir), types.Defaults{}); err != nil {
		t.Fatal(err)
	}

	frame := make([]float32, types.DefaultBlockSize)
	for i := range frame {
		frame[i] = 0.5
	}
	backend.pushCapture("mic0", frame)
	time.Sleep(100 * time.Millisecond)

	if err := e.StopWorker("c1"); err != nil {
		t.Fatal(err)
	}

	data, err := audio.ReadWAV(filepath.Join(dir, "c1.wav"))
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range data.Samples {
		if s != 0 {
			t.Fatalf("Samples[%d] = %v, want 0 while muted", i, s)
		}
	}
}

func TestPauseWorkerRemovesMeter(t *testing.T) {
	backend := newFakeBackend()
	e := newTestEngine(backend, Hooks{})

	route := playbackRoute("p1")
	if err := e.StartWorker("p1", route, types.Defaults{}); err != nil {
		t.Fatal(err)
	}
	e.meters.Publish("p1", audio.Levels{Peak: 0.5}, time.Now())

	if err := e.PauseWorker("p1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.meters.Get("p1"); ok {
		t.Error("meter still present after PauseWorker")
	}

	if err := e.ResumeWorker("p1"); err != nil {
		t.Fatal(err)
	}
	if err := e.StopWorker("p1"); err != nil {
		t.Fatal(err)
	}
}

func TestUnderrunsSurfacedAtStop(t *testing.T) {
	dir := t.TempDir()
	backend := newFakeBackend()

	type underrunReport struct {
		streamID string
		count    int64
	}
	reported := make(chan underrunReport, 1)
	e := newTestEngine(backend, Hooks{
		Underrun: func(streamID string, count int64) {
			reported <- underrunReport{streamID, count}
		},
	})

	if err := e.StartWorker("c1", captureRoute("c1", dir), types.Defaults{}); err != nil {
		t.Fatal(err)
	}

	e.mu.Lock()
	e.workers["c1"].underruns.Add(3)
	e.mu.Unlock()

	counts := e.UnderrunCounts()
	if counts["c1"] != 3 {
		t.Errorf("UnderrunCounts()[c1] = %d, want 3", counts["c1"])
	}

	if err := e.StopWorker("c1"); err != nil {
		t.Fatal(err)
	}
	select {
	case rep := <-reported:
		if rep.streamID != "c1" || rep.count != 3 {
			t.Errorf("underrun report = %+v, want {c1 3}", rep)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("underrun hook did not fire on stop")
	}

	if len(e.UnderrunCounts()) != 0 {
		t.Errorf("UnderrunCounts() = %v after stop, want empty", e.UnderrunCounts())
	}
}

func TestWorkerNotFound(t *testing.T) {
	e := newTestEngine(newFakeBackend(), Hooks{})

	if err := e.PauseWorker("ghost"); err != ErrWorkerNotFound {
		t.Errorf("PauseWorker(ghost) = %v, want ErrWorkerNotFound", err)
	}
	if err := e.ResumeWorker("ghost"); err != ErrWorkerNotFound {
		t.Errorf("ResumeWorker(ghost) = %v, want ErrWorkerNotFound", err)
	}
	if err := e.StopWorker("ghost"); err != ErrWorkerNotFound {
		t.Errorf("StopWorker(ghost) = %v, want ErrWorkerNotFound", err)
	}
}

func TestStartWorkerTwice(t *testing.T) {
	e := newTestEngine(newFakeBackend(), Hooks{})

	route := playbackRoute("p1")
	if err := e.StartWorker("p1", route, types.Defaults{}); err != nil {
		t.Fatal(err)
	}
	defer e.StopAll()

	if err := e.StartWorker("p1", route, types.Defaults{}); err != ErrWorkerExists {
		t.Errorf("second StartWorker = %v, want ErrWorkerExists", err)
	}
}

func TestFileSinkRequiresPath(t *testing.T) {
	e := newTestEngine(newFakeBackend(), Hooks{})

	route := types.Route{
		RouteID: "r1",
		Source:  types.Node{Kind: types.KindTestTone},
		Sink:    types.Node{Kind: types.KindFile},
		Enabled: true,
	}
	err := e.StartWorker("r1", route, types.Defaults{})
	if err == nil {
		e.StopAll()
		t.Fatal("StartWorker without sink path succeeded, want error")
	}
}

func TestTTSSourceMaterializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tts.wav")
	finished := make(chan error, 1)
	e := newTestEngine(newFakeBackend(), Hooks{
		StreamFinished: func(streamID string, err error) { finished <- err },
	})

	route := types.Route{
		RouteID: "t1",
		Source:  types.Node{Kind: types.KindTTS, Config: map[string]any{"text": "hi"}},
		Sink:    types.Node{Kind: types.KindFile, Config: map[string]any{"path": path}},
		Enabled: true,
	}
	if err := e.StartWorker("t1", route, types.Defaults{}); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("stream finished with error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tts stream did not finish")
	}
	if err := e.StopWorker("t1"); err != nil {
		t.Fatal(err)
	}

	if diag := e.diag.TTS(); diag["t1"] == "" {
		t.Error("no TTS diagnostics recorded")
	}
}

func TestTTSSourceRequiresText(t *testing.T) {
	e := newTestEngine(newFakeBackend(), Hooks{})

	route := types.Route{
		RouteID: "t1",
		Source:  types.Node{Kind: types.KindTTS},
		Sink:    types.Node{Kind: types.KindVirtualOutput},
		Enabled: true,
	}
	if err := e.StartWorker("t1", route, types.Defaults{}); err == nil {
		e.StopAll()
		t.Fatal("StartWorker with empty tts text succeeded, want error")
	}
}
