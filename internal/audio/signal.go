package audio

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Test tone defaults used when a route does not configure them.
const (
	DefaultToneHz        = 220.0
	DefaultToneAmplitude = 0.2
	DefaultToneDuration  = 1.0
	// TTSPeakTarget is the peak level synthesized speech is normalized to.
	TTSPeakTarget = 0.8
)

// GenerateTone renders a sine tone as interleaved samples in the given
// format.
func GenerateTone(hz, amplitude, durationSec float64, format Format) []float32 {
	frames := int(durationSec * float64(format.SampleRate))
	out := make([]float32, frames*format.Channels)
	step := 2 * math.Pi * hz / float64(format.SampleRate)
	for i := range frames {
		s := float32(amplitude * math.Sin(step*float64(i)))
		for c := range format.Channels {
			out[i*format.Channels+c] = s
		}
	}
	return out
}

// NormalizePeak scales samples so the absolute peak equals target. Silent
// input is returned unchanged.
func NormalizePeak(samples []float32, target float64) {
	var peak float64
	for _, s := range samples {
		if abs := math.Abs(float64(s)); abs > peak {
			peak = abs
		}
	}
	if peak == 0 {
		return
	}
	scale := target / peak
	for i, s := range samples {
		samples[i] = float32(float64(s) * scale)
	}
}

// ConvertSignal converts decoded samples from their native format to the
// route format, adjusting both channel count and sample rate.
func ConvertSignal(samples []float32, srcRate, srcChannels int, format Format) ([]float32, error) {
	mono := DownmixMono(samples, srcChannels)

	if srcRate != format.SampleRate {
		rs, err := resampling.New(&resampling.Config{
			InputRate:  float64(srcRate),
			OutputRate: float64(format.SampleRate),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create resampler: %w", err)
		}
		in := make([]float64, len(mono))
		for i, s := range mono {
			in[i] = float64(s)
		}
		out, err := rs.Process(in)
		if err != nil {
			return nil, fmt.Errorf("resample error: %w", err)
		}
		mono = make([]float32, len(out))
		for i, s := range out {
			mono[i] = float32(s)
		}
	}

	if format.Channels == 1 {
		return mono, nil
	}
	out := make([]float32, len(mono)*format.Channels)
	for i, s := range mono {
		for c := range format.Channels {
			out[i*format.Channels+c] = s
		}
	}
	return out, nil
}

// Signal is a fully materialized sample buffer played back frame by
// frame through a cursor. It is not safe for concurrent use.
type Signal struct {
	samples []float32
	format  Format
	loop    bool
	cursor  int
}

// NewSignal wraps materialized samples in a playback cursor.
func NewSignal(samples []float32, format Format, loop bool) *Signal {
	return &Signal{samples: samples, format: format, loop: loop}
}

// NextFrame fills out with the next block of interleaved samples and
// returns the number of samples produced. The second return value is
// false once a non-looping signal is exhausted; the remainder of out is
// zero-filled in that case.
func (s *Signal) NextFrame(out []float32) (int, bool) {
	n := 0
	for n < len(out) {
		if s.cursor >= len(s.samples) {
			if !s.loop {
				break
			}
			s.cursor = 0
		}
		copied := copy(out[n:], s.samples[s.cursor:])
		s.cursor += copied
		n += copied
	}
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	more := s.loop || s.cursor < len(s.samples)
	return n, more
}

// Rewind resets the cursor to the start of the signal.
func (s *Signal) Rewind() {
	s.cursor = 0
}
