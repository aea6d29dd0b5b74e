package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-audiorouter/internal/audio"
	"github.com/oszuidwest/zwfm-audiorouter/internal/types"
)

// worker moves frames for a single running stream. Device-backed workers
// are driven by backend callbacks; signal-to-file and discard workers run
// their own paced loop. A worker belongs to exactly one stream and is
// discarded on stop, never reused.
type worker struct {
	engine *Engine

	streamID string
	route    types.Route
	format   audio.Format

	handle audio.Handle  // nil for pure loop workers
	signal *audio.Signal // nil for capture workers
	writer *audio.WAVWriter

	asrConv    *audio.ASRConverter
	asrFrames  chan []float32
	rawFrames  chan []float32
	frameCount atomic.Int64
	underruns  atomic.Int64
	paused     atomic.Bool
	finishOnce atomic.Bool
	stopCh     chan struct{}
	doneCh     chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc

	levels    audio.LevelData
	silence   *audio.SilenceDetector
	lastMeter time.Time
}

func newWorker(e *Engine, streamID string, route types.Route, format audio.Format) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &worker{
		engine:   e,
		streamID: streamID,
		route:    route,
		format:   format,
		silence:  audio.NewSilenceDetector(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// blockDuration is the wall-clock time one frame block represents.
func (w *worker) blockDuration() time.Duration {
	return time.Duration(float64(w.format.BlockSize) / float64(w.format.SampleRate) * float64(time.Second))
}

// processFrame applies controls, meters the result, and runs silence
// detection. It is called for every block regardless of worker kind.
func (w *worker) processFrame(frame []float32) {
	gain, muted := w.engine.controls.Gain(w.streamID)
	audio.ApplyGain(frame, gain, muted)

	audio.ProcessFrame(frame, &w.levels)

	now := time.Now()
	if now.Sub(w.lastMeter) >= types.MeterInterval {
		levels := audio.CalculateLevels(&w.levels)
		w.engine.meters.Publish(w.streamID, levels, now)
		w.levels.Reset()
		w.lastMeter = now

		ev := w.silence.Update(levels.RMS, w.engine.silenceCfg, now)
		if ev.JustEntered || ev.JustRecovered {
			w.engine.notifySilence(w.streamID, ev)
		}
	}
}

// pushASR converts a frame at the recognizer boundary and queues it for
// dispatch. The queue drops the oldest frame under pressure so live
// capture never stalls behind a slow model.
func (w *worker) pushASR(frame []float32) {
	converted, err := w.asrConv.Convert(frame)
	if err != nil {
		slog.Error("asr conversion failed", "stream_id", w.streamID, "error", err)
		return
	}
	if len(converted) == 0 {
		return
	}

	select {
	case w.asrFrames <- converted:
	default:
		select {
		case <-w.asrFrames:
		default:
		}
		select {
		case w.asrFrames <- converted:
		default:
		}
	}
}

// runASRDispatch batches queued recognizer frames and hands them to the
// ASR adapter. Runs until the worker stops.
func (w *worker) runASRDispatch() {
	var batch []float32
	pending := 0

	flush := func() {
		if len(batch) == 0 {
			return
		}
		err := w.engine.asr.Dispatch(w.ctx, w.streamID, batch)
		w.engine.diag.RecordASR(w.streamID, err)
		if err != nil {
			slog.Error("asr dispatch failed", "stream_id", w.streamID, "error", err)
		}
		batch = nil
		pending = 0
	}

	for {
		select {
		case <-w.stopCh:
			flush()
			return
		case frame := <-w.asrFrames:
			if w.paused.Load() {
				continue
			}
			batch = append(batch, frame...)
			pending++
			if pending >= types.ASRDispatchEvery {
				flush()
			}
		}
	}
}

// runSignalLoop paces a materialized signal into a non-device sink: a
// WAV file, the recognizer, or a discard for virtual outputs.
func (w *worker) runSignalLoop() {
	defer close(w.doneCh)
	defer w.cleanup()

	ticker := time.NewTicker(w.blockDuration())
	defer ticker.Stop()

	frame := make([]float32, w.format.BlockSize*w.format.Channels)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
		}

		if w.paused.Load() {
			continue
		}

		_, more := w.signal.NextFrame(frame)
		w.processFrame(frame)
		w.frameCount.Add(1)

		if w.asrConv != nil {
			w.pushASR(frame)
		}
		if w.writer != nil {
			if err := w.writer.WriteFrame(frame); err != nil {
				slog.Error("file sink write failed", "stream_id", w.streamID, "error", err)
				w.finish(err)
				return
			}
		}

		if !more {
			w.finish(nil)
			return
		}
	}
}

// captureCallback receives frames from a capture device. It runs on the
// backend audio thread, so it only copies and hands off. The oldest
// queued frame is dropped under pressure.
func (w *worker) captureCallback(in []float32) {
	if w.paused.Load() {
		return
	}
	cp := make([]float32, len(in))
	copy(cp, in)

	select {
	case w.rawFrames <- cp:
	default:
		select {
		case <-w.rawFrames:
		default:
		}
		select {
		case w.rawFrames <- cp:
		default:
		}
	}
}

// runCaptureLoop drains frames handed off by the capture callback and
// runs the full processing chain on them.
func (w *worker) runCaptureLoop() {
	defer close(w.doneCh)
	defer w.cleanup()

	for {
		select {
		case <-w.stopCh:
			return
		case frame := <-w.rawFrames:
			if w.paused.Load() {
				continue
			}
			w.processFrame(frame)
			w.frameCount.Add(1)

			if w.asrConv != nil {
				w.pushASR(frame)
			}
			if w.writer != nil {
				if err := w.writer.WriteFrame(frame); err != nil {
					slog.Error("file sink write failed", "stream_id", w.streamID, "error", err)
					w.finish(err)
					return
				}
			}
		}
	}
}

// playbackCallback fills a playback device buffer from the signal. Runs
// on the backend audio thread.
func (w *worker) playbackCallback(out []float32) {
	if w.paused.Load() {
		for i := range out {
			out[i] = 0
		}
		return
	}

	_, more := w.signal.NextFrame(out)
	w.processFrame(out)
	w.frameCount.Add(1)

	if !more {
		w.finish(nil)
	}
}

// duplexCallback copies capture input straight to playback output for
// monitor routes, metering the mixed result.
func (w *worker) duplexCallback(in, out []float32) {
	if w.paused.Load() {
		for i := range out {
			out[i] = 0
		}
		return
	}

	n := copy(out, in)
	for i := n; i < len(out); i++ {
		out[i] = 0
		w.underruns.Add(1)
	}
	w.processFrame(out)
	w.frameCount.Add(1)
}

// finish reports natural end of stream exactly once. The module decides
// what the terminal state means; the worker just stops producing.
func (w *worker) finish(err error) {
	if !w.finishOnce.CompareAndSwap(false, true) {
		return
	}
	go w.engine.streamFinished(w.streamID, err)
}

// pause suspends data flow without releasing the device.
func (w *worker) pause() error {
	w.paused.Store(true)
	if w.handle != nil {
		if err := w.handle.Stop(); err != nil {
			return fmt.Errorf("failed to stop device stream: %w", err)
		}
	}
	return nil
}

// resume restarts data flow on a paused worker.
func (w *worker) resume() error {
	if w.handle != nil {
		if err := w.handle.Start(); err != nil {
			return &types.DeviceUnavailableError{DeviceID: w.deviceID(), Err: err}
		}
	}
	w.paused.Store(false)
	return nil
}

// stop tears the worker down and waits for its loop to exit, bounded by
// the join timeout.
func (w *worker) stop() {
	w.cancel()
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if w.handle != nil {
		if err := w.handle.Close(); err != nil {
			slog.Warn("failed to close device handle", "stream_id", w.streamID, "error", err)
		}
		// Device workers have no loop goroutine holding doneCh open
		// unless a capture drain loop was started.
	}

	select {
	case <-w.doneCh:
	case <-time.After(types.WorkerJoinTimeout):
		slog.Warn("worker did not stop in time", "stream_id", w.streamID)
	}
}

// cleanup closes the file sink, if any, and hands the finished recording
// to the engine for upload.
func (w *worker) cleanup() {
	if w.writer != nil {
		path := w.writer.Path()
		if err := w.writer.Close(); err != nil {
			slog.Error("failed to finalize recording", "stream_id", w.streamID, "error", err)
		} else {
			w.engine.recordingFinished(w.streamID, path)
		}
		w.writer = nil
	}
}

func (w *worker) deviceID() string {
	if w.route.Direction() == types.DirectionCapture {
		return w.route.Source.DeviceID
	}
	return w.route.Sink.DeviceID
}
