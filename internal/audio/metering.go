// Package audio provides the route graph, frame processing, and metering
// primitives for the audio router.
package audio

import (
	"math"
)

const (
	// FullScale is the linear amplitude treated as full scale.
	FullScale = 1.0
	// ClipThreshold is slightly below full scale to catch near-clips.
	ClipThreshold = 0.999
)

// LevelData holds raw sample accumulator data for level calculation.
type LevelData struct {
	SumSquares  float64
	Peak        float64
	ClipCount   int
	SampleCount int
}

// ProcessFrame accumulates level data from a block of float32 samples.
// Samples are expected in [-1,1]; out-of-range values still register as
// peaks and clips.
func ProcessFrame(frame []float32, data *LevelData) {
	for _, s := range frame {
		v := float64(s)
		data.SumSquares += v * v
		if abs := math.Abs(v); abs > data.Peak {
			data.Peak = abs
		}
		if v >= ClipThreshold || v <= -ClipThreshold {
			data.ClipCount++
		}
		data.SampleCount++
	}
}

// Levels contains calculated linear audio levels.
type Levels struct {
	Peak    float64 // Peak amplitude, clamped to [0,1]
	RMS     float64 // RMS amplitude, clamped to [0,1]
	Clipped bool    // True if any sample reached the clip threshold
}

// CalculateLevels computes peak and RMS levels from accumulated sample
// data. Values are clamped to [0,1] so downstream consumers never see
// out-of-range meters.
func CalculateLevels(data *LevelData) Levels {
	if data.SampleCount == 0 {
		return Levels{}
	}

	rms := math.Sqrt(data.SumSquares / float64(data.SampleCount))

	return Levels{
		Peak:    math.Min(data.Peak, FullScale),
		RMS:     math.Min(rms, FullScale),
		Clipped: data.ClipCount > 0,
	}
}

// Reset resets accumulators for the next measurement period.
func (d *LevelData) Reset() {
	d.SumSquares = 0
	d.Peak = 0
	d.ClipCount = 0
	d.SampleCount = 0
}
