package audio

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Format describes the shape of a frame stream.
type Format struct {
	SampleRate int // Samples per second per channel
	Channels   int // Interleaved channel count
	BlockSize  int // Samples per channel per frame
}

// DBToLinear converts a gain in dB to a linear multiplier.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// ApplyGain multiplies the frame by a linear gain and clamps every sample
// to [-1,1]. When muted the frame is zeroed instead.
func ApplyGain(frame []float32, gain float64, muted bool) {
	if muted {
		for i := range frame {
			frame[i] = 0
		}
		return
	}
	for i, s := range frame {
		v := float64(s) * gain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		frame[i] = float32(v)
	}
}

// DownmixMono averages interleaved channels into a mono frame. Mono
// input is returned unchanged.
func DownmixMono(frame []float32, channels int) []float32 {
	if channels <= 1 {
		return frame
	}
	frames := len(frame) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(frame[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// ASRConverter normalizes frames crossing the speech-recognition boundary
// to mono at the recognizer sample rate. Conversion happens exactly once,
// at the boundary, regardless of the route's native format.
// It is not safe for concurrent use.
type ASRConverter struct {
	srcRate   int
	channels  int
	resampler resampling.Resampler
	buf       []float64
}

// NewASRConverter creates a converter from the given source format to
// mono at targetRate. A nil resampler is used when the rates already
// match.
func NewASRConverter(srcRate, channels, targetRate int) (*ASRConverter, error) {
	c := &ASRConverter{srcRate: srcRate, channels: channels}
	if srcRate != targetRate {
		rs, err := resampling.New(&resampling.Config{
			InputRate:  float64(srcRate),
			OutputRate: float64(targetRate),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create resampler: %w", err)
		}
		c.resampler = rs
	}
	return c, nil
}

// Convert downmixes the frame to mono and resamples it to the target
// rate. The returned slice is owned by the caller.
func (c *ASRConverter) Convert(frame []float32) ([]float32, error) {
	mono := DownmixMono(frame, c.channels)
	if c.resampler == nil {
		out := make([]float32, len(mono))
		copy(out, mono)
		return out, nil
	}

	if cap(c.buf) < len(mono) {
		c.buf = make([]float64, len(mono))
	}
	in := c.buf[:len(mono)]
	for i, s := range mono {
		in[i] = float64(s)
	}

	resampled, err := c.resampler.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	out := make([]float32, len(resampled))
	for i, s := range resampled {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = float32(s)
	}
	return out, nil
}
