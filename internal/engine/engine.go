// Package engine runs the data plane of the audio router. It owns one
// worker per running stream, moving frames between devices, materialized
// signals, file sinks, and the model adapters. All lifecycle authority
// stays with the session layer; the engine only executes transitions it
// is told about.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oszuidwest/zwfm-audiorouter/internal/adapters"
	"github.com/oszuidwest/zwfm-audiorouter/internal/audio"
	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

// Sentinel errors for engine operations.
var (
	ErrWorkerExists   = errors.New("worker already running for stream")
	ErrWorkerNotFound = errors.New("no worker for stream")
)

// Hooks are callbacks into the session layer. They are invoked from
// worker goroutines and must not call back into the engine while holding
// session locks that the engine itself takes.
type Hooks struct {
	// StreamFinished fires when a non-looping signal ran out or a sink
	// failed mid-stream. A nil error means natural end of signal.
	StreamFinished func(streamID string, err error)
	// DeviceLost fires when a device failed while its stream was running.
	DeviceLost func(streamID string, err error)
	// Silence fires on confirmed silence entry and recovery.
	Silence func(streamID string, ev audio.SilenceEvent)
	// RecordingFinished fires when a file sink has been finalized.
	RecordingFinished func(streamID, path string)
	// Underrun fires when a worker stops after starving its playback
	// buffer, carrying the total short-fill count.
	Underrun func(streamID string, count int64)
}

// Engine owns the per-stream workers. It is safe for concurrent use.
type Engine struct {
	backend audio.Backend
	catalog *audio.Catalog

	meters   *audio.MeterStore
	controls *audio.ControlTable
	asr      adapters.ASRAdapter
	tts      adapters.TTSAdapter
	diag     *adapters.Diagnostics

	silenceCfg audio.SilenceConfig
	hooks      Hooks

	mu      sync.Mutex
	workers map[string]*worker
}

// New creates an engine over the given backend and data-plane stores.
func New(backend audio.Backend, catalog *audio.Catalog, meters *audio.MeterStore, controls *audio.ControlTable, asr adapters.ASRAdapter, tts adapters.TTSAdapter, diag *adapters.Diagnostics, silenceCfg audio.SilenceConfig, hooks Hooks) *Engine {
	return &Engine{
		backend:    backend,
		catalog:    catalog,
		meters:     meters,
		controls:   controls,
		asr:        asr,
		tts:        tts,
		diag:       diag,
		silenceCfg: silenceCfg,
		hooks:      hooks,
		workers:    make(map[string]*worker),
	}
}

// Running reports whether any worker is live.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.workers) > 0
}

// WorkerCount returns the number of live workers.
func (e *Engine) WorkerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.workers)
}

// UnderrunCounts returns per-stream playback underrun totals for live
// workers that have starved at least once.
func (e *Engine) UnderrunCounts() map[string]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int64)
	for id, w := range e.workers {
		if n := w.underruns.Load(); n > 0 {
			out[id] = n
		}
	}
	return out
}

// routeFormat derives the engine format for a route from its source
// configuration.
func routeFormat(route *types.Route) audio.Format {
	return audio.Format{
		SampleRate: route.Source.ConfigInt("sample_rate", types.DefaultSampleRate),
		Channels:   route.Source.ConfigInt("channels", types.DefaultChannels),
		BlockSize:  route.Source.ConfigInt("block_size", types.DefaultBlockSize),
	}
}

// StartWorker creates and starts the worker for a stream. Any failure
// leaves no partial resources behind; the caller rolls back its own
// state on error.
func (e *Engine) StartWorker(streamID string, route types.Route, defaults types.Defaults) error {
	e.mu.Lock()
	if _, ok := e.workers[streamID]; ok {
		e.mu.Unlock()
		return ErrWorkerExists
	}
	e.mu.Unlock()

	w := newWorker(e, streamID, route, routeFormat(&route))

	if route.HasASRIngress() {
		conv, err := audio.NewASRConverter(w.format.SampleRate, w.format.Channels, types.ASRSampleRate)
		if err != nil {
			return err
		}
		w.asrConv = conv
		w.asrFrames = make(chan []float32, types.ASRBufferFrames)
	}

	var err error
	if route.Direction() == types.DirectionCapture {
		err = e.startCapture(w, defaults)
	} else {
		err = e.startPlayback(w, defaults)
	}
	if err != nil {
		w.cleanup()
		if w.handle != nil {
			w.handle.Close()
		}
		return err
	}

	if w.asrConv != nil {
		go w.runASRDispatch()
	}

	e.mu.Lock()
	e.workers[streamID] = w
	e.mu.Unlock()

	slog.Info("worker started", "stream_id", streamID, "direction", route.Direction(), "sink", route.Sink.Kind)
	return nil
}

// startCapture wires a hardware capture source to its sink.
func (e *Engine) startCapture(w *worker, defaults types.Defaults) error {
	inDev, err := e.catalog.Resolve(w.route.Source.DeviceID, defaults, types.DirectionCapture)
	if err != nil {
		return err
	}

	onErr := func(err error) { e.deviceLost(w.streamID, err) }

	if w.route.Sink.Kind == types.KindSpeakers {
		// Monitor route: one duplex stream, no intermediate queue.
		outDev, err := e.catalog.Resolve(w.route.Sink.DeviceID, defaults, types.DirectionPlayback)
		if err != nil {
			return err
		}
		handle, err := audio.OpenWithTimeout(inDev, types.DeviceOpenTimeout, func() (audio.Handle, error) {
			return e.backend.OpenDuplex(inDev, outDev, w.format, w.duplexCallback, onErr)
		})
		if err != nil {
			return err
		}
		w.handle = handle
		close(w.doneCh) // no loop goroutine for pure callback workers
		if err := handle.Start(); err != nil {
			handle.Close()
			return &types.DeviceUnavailableError{DeviceID: inDev, Err: err}
		}
		return nil
	}

	if err := e.prepareSink(w); err != nil {
		return err
	}

	w.rawFrames = make(chan []float32, types.ASRBufferFrames)
	handle, err := audio.OpenWithTimeout(inDev, types.DeviceOpenTimeout, func() (audio.Handle, error) {
		return e.backend.OpenCapture(inDev, w.format, w.captureCallback, onErr)
	})
	if err != nil {
		return err
	}
	w.handle = handle

	go w.runCaptureLoop()

	if err := handle.Start(); err != nil {
		handle.Close()
		close(w.stopCh)
		return &types.DeviceUnavailableError{DeviceID: inDev, Err: err}
	}
	return nil
}

// startPlayback materializes the route's signal and wires it to its sink.
func (e *Engine) startPlayback(w *worker, defaults types.Defaults) error {
	signal, err := e.materialize(w)
	if err != nil {
		return err
	}
	w.signal = signal

	if w.route.Sink.Kind == types.KindSpeakers {
		outDev, err := e.catalog.Resolve(w.route.Sink.DeviceID, defaults, types.DirectionPlayback)
		if err != nil {
			return err
		}
		onErr := func(err error) { e.deviceLost(w.streamID, err) }
		handle, err := audio.OpenWithTimeout(outDev, types.DeviceOpenTimeout, func() (audio.Handle, error) {
			return e.backend.OpenPlayback(outDev, w.format, w.playbackCallback, onErr)
		})
		if err != nil {
			return err
		}
		w.handle = handle
		close(w.doneCh)
		if err := handle.Start(); err != nil {
			handle.Close()
			return &types.DeviceUnavailableError{DeviceID: outDev, Err: err}
		}
		return nil
	}

	if err := e.prepareSink(w); err != nil {
		return err
	}

	go w.runSignalLoop()
	return nil
}

// prepareSink sets up non-device sinks: a WAV writer for file sinks,
// nothing for recognizer and virtual sinks.
func (e *Engine) prepareSink(w *worker) error {
	if w.route.Sink.Kind != types.KindFile {
		return nil
	}
	path := w.route.Sink.ConfigString("path", "")
	if path == "" {
		v := types.NewValidationError()
		v.Add("sink.config.path", "file sink requires a path", nil)
		return v
	}
	writer, err := audio.NewWAVWriter(path, w.format.SampleRate, w.format.Channels)
	if err != nil {
		return err
	}
	w.writer = writer
	return nil
}

// materialize renders a signal source into a sample buffer.
func (e *Engine) materialize(w *worker) (*audio.Signal, error) {
	src := &w.route.Source
	loop := src.Config["loop"] == true

	switch src.Kind {
	case types.KindTestTone:
		samples := audio.GenerateTone(
			src.ConfigFloat("tone_hz", audio.DefaultToneHz),
			src.ConfigFloat("amplitude", audio.DefaultToneAmplitude),
			src.ConfigFloat("duration_seconds", audio.DefaultToneDuration),
			w.format,
		)
		return audio.NewSignal(samples, w.format, loop), nil

	case types.KindFileInput:
		path := src.ConfigString("path", "")
		if path == "" {
			v := types.NewValidationError()
			v.Add("source.config.path", "file input requires a path", nil)
			return nil, v
		}
		data, err := audio.ReadWAV(path)
		if err != nil {
			return nil, err
		}
		samples, err := audio.ConvertSignal(data.Samples, data.SampleRate, data.Channels, w.format)
		if err != nil {
			return nil, err
		}
		return audio.NewSignal(samples, w.format, loop), nil

	case types.KindTTS:
		text := src.ConfigString("text", "")
		if text == "" {
			v := types.NewValidationError()
			v.Add("source.config.text", "tts source requires text", nil)
			return nil, v
		}
		mono, err := e.tts.Synthesize(w.ctx, text, w.format.SampleRate)
		e.diag.RecordTTS(w.route.RouteID, err)
		if err != nil {
			return nil, fmt.Errorf("tts synthesis failed: %w", err)
		}
		audio.NormalizePeak(mono, audio.TTSPeakTarget)
		samples, err := audio.ConvertSignal(mono, w.format.SampleRate, 1, w.format)
		if err != nil {
			return nil, err
		}
		return audio.NewSignal(samples, w.format, loop), nil

	default:
		v := types.NewValidationError()
		v.Add("source.kind", "not a signal source", string(src.Kind))
		return nil, v
	}
}

// PauseWorker suspends a worker's data flow, keeping its device open.
func (e *Engine) PauseWorker(streamID string) error {
	e.mu.Lock()
	w, ok := e.workers[streamID]
	e.mu.Unlock()
	if !ok {
		return ErrWorkerNotFound
	}
	if err := w.pause(); err != nil {
		return err
	}
	e.meters.Remove(streamID)
	return nil
}

// ResumeWorker restarts a paused worker.
func (e *Engine) ResumeWorker(streamID string) error {
	e.mu.Lock()
	w, ok := e.workers[streamID]
	e.mu.Unlock()
	if !ok {
		return ErrWorkerNotFound
	}
	return w.resume()
}

// StopWorker tears a worker down and removes its meter.
func (e *Engine) StopWorker(streamID string) error {
	e.mu.Lock()
	w, ok := e.workers[streamID]
	if ok {
		delete(e.workers, streamID)
	}
	e.mu.Unlock()
	if !ok {
		return ErrWorkerNotFound
	}

	w.stop()
	e.meters.Remove(streamID)
	slog.Info("worker stopped", "stream_id", streamID, "frames", w.frameCount.Load())

	if n := w.underruns.Load(); n > 0 && e.hooks.Underrun != nil {
		e.hooks.Underrun(streamID, n)
	}
	return nil
}

// StopAll tears down every worker, used on shutdown and module disable.
func (e *Engine) StopAll() {
	e.mu.Lock()
	workers := make([]*worker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.workers = make(map[string]*worker)
	e.mu.Unlock()

	for _, w := range workers {
		w.stop()
		e.meters.Remove(w.streamID)
	}
}

// streamFinished forwards natural end of stream to the session layer.
func (e *Engine) streamFinished(streamID string, err error) {
	if e.hooks.StreamFinished != nil {
		e.hooks.StreamFinished(streamID, err)
	}
}

// deviceLost forwards a mid-stream device failure to the session layer.
func (e *Engine) deviceLost(streamID string, err error) {
	slog.Error("device lost", "stream_id", streamID, "error", err)
	if e.hooks.DeviceLost != nil {
		go e.hooks.DeviceLost(streamID, err)
	}
}

// notifySilence forwards silence transitions to the session layer.
func (e *Engine) notifySilence(streamID string, ev audio.SilenceEvent) {
	if e.hooks.Silence != nil {
		go e.hooks.Silence(streamID, ev)
	}
}

// recordingFinished forwards a finalized file sink to the session layer.
func (e *Engine) recordingFinished(streamID, path string) {
	if e.hooks.RecordingFinished != nil {
		go e.hooks.RecordingFinished(streamID, path)
	}
}
