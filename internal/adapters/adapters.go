// Package adapters bridges audio streams to hosted model runtimes.
// The engine hands recognizer-bound frames to the ASR adapter and asks
// the TTS adapter to synthesize speech for playback routes.
package adapters

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// ASRAdapter receives normalized audio for speech recognition. Frames
// arrive as mono float32 at the recognizer sample rate.
type ASRAdapter interface {
	// Dispatch hands a batch of frames to the recognizer.
	Dispatch(ctx context.Context, streamID string, samples []float32) error
}

// TTSAdapter synthesizes speech for playback routes.
type TTSAdapter interface {
	// Synthesize renders text to mono float32 samples at the given rate.
	Synthesize(ctx context.Context, text string, sampleRate int) ([]float32, error)
}

// NoopASR discards frames. Used when no recognizer model is loaded.
type NoopASR struct{}

// Dispatch implements ASRAdapter.
func (NoopASR) Dispatch(_ context.Context, _ string, _ []float32) error {
	return nil
}

// ToneTTS renders a placeholder tone instead of speech. Used when no
// synthesis model is loaded so TTS routes remain audible end to end.
type ToneTTS struct {
	Hz        float64 // Tone frequency, 0 = 330 Hz
	Amplitude float64 // Peak amplitude, 0 = 0.8
}

// Synthesize implements TTSAdapter. Duration scales with text length at
// a rough speaking rate.
func (t ToneTTS) Synthesize(_ context.Context, text string, sampleRate int) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}
	hz := t.Hz
	if hz == 0 {
		hz = 330
	}
	amp := t.Amplitude
	if amp == 0 {
		amp = 0.8
	}

	// ~12 characters per second, bounded to keep routes responsive.
	seconds := float64(len(text)) / 12
	if seconds < 0.25 {
		seconds = 0.25
	}
	if seconds > 10 {
		seconds = 10
	}

	frames := int(seconds * float64(sampleRate))
	out := make([]float32, frames)
	step := 2 * math.Pi * hz / float64(sampleRate)
	for i := range out {
		out[i] = float32(amp * math.Sin(step*float64(i)))
	}
	return out, nil
}

// Diagnostics records the most recent adapter outcome per stream so the
// dashboard can surface model health without scraping logs.
// It is safe for concurrent use.
type Diagnostics struct {
	mu  sync.Mutex
	asr map[string]string
	tts map[string]string
}

// NewDiagnostics creates an empty diagnostics recorder.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{
		asr: make(map[string]string),
		tts: make(map[string]string),
	}
}

// RecordASR stores the outcome of an ASR dispatch.
func (d *Diagnostics) RecordASR(streamID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.asr[streamID] = outcome(err)
}

// RecordTTS stores the outcome of a TTS synthesis.
func (d *Diagnostics) RecordTTS(routeID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tts[routeID] = outcome(err)
}

// Forget drops diagnostics for a stream, called when its route is removed.
func (d *Diagnostics) Forget(streamID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.asr, streamID)
	delete(d.tts, streamID)
}

// ASR returns a copy of the per-stream ASR outcomes.
func (d *Diagnostics) ASR() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.asr))
	for k, v := range d.asr {
		out[k] = v
	}
	return out
}

// TTS returns a copy of the per-route TTS outcomes.
func (d *Diagnostics) TTS() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.tts))
	for k, v := range d.tts {
		out[k] = v
	}
	return out
}

func outcome(err error) string {
	if err != nil {
		return fmt.Sprintf("error at %s: %v", time.Now().Format(time.RFC3339), err)
	}
	return "ok at " + time.Now().Format(time.RFC3339)
}
