package audio

import (
	"math"
	"testing"
)

func TestDBToLinear(t *testing.T) {
	tests := []struct {
		db   float64
		want float64
	}{
		{0, 1.0},
		{20, 10.0},
		{-20, 0.1},
		{6, 1.9952623149688795},
	}
	for _, tt := range tests {
		if got := DBToLinear(tt.db); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("DBToLinear(%v) = %v, want %v", tt.db, got, tt.want)
		}
	}
}

func TestApplyGain(t *testing.T) {
	frame := []float32{0.5, -0.5}
	ApplyGain(frame, 2.0, false)
	if frame[0] != 1.0 || frame[1] != -1.0 {
		t.Errorf("ApplyGain(x2) = %v, want [1 -1]", frame)
	}
}

func TestApplyGainClamps(t *testing.T) {
	frame := []float32{0.9, -0.9}
	ApplyGain(frame, 10.0, false)
	if frame[0] != 1.0 || frame[1] != -1.0 {
		t.Errorf("ApplyGain(x10) = %v, want clamped to [1 -1]", frame)
	}
}

func TestApplyGainMuted(t *testing.T) {
	frame := []float32{0.5, -0.5, 0.1}
	ApplyGain(frame, 2.0, true)
	for i, s := range frame {
		if s != 0 {
			t.Errorf("frame[%d] = %v, want 0 when muted", i, s)
		}
	}
}

func TestDownmixMono(t *testing.T) {
	stereo := []float32{1.0, 0.0, 0.5, 0.5, -1.0, 1.0}
	mono := DownmixMono(stereo, 2)
	want := []float32{0.5, 0.5, 0.0}
	if len(mono) != len(want) {
		t.Fatalf("len = %d, want %d", len(mono), len(want))
	}
	for i := range want {
		if math.Abs(float64(mono[i]-want[i])) > 1e-6 {
			t.Errorf("mono[%d] = %v, want %v", i, mono[i], want[i])
		}
	}
}

func TestDownmixMonoPassthrough(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := DownmixMono(in, 1)
	if &out[0] != &in[0] {
		t.Error("DownmixMono(mono) should return the input unchanged")
	}
}

func TestASRConverterSameRate(t *testing.T) {
	conv, err := NewASRConverter(16000, 2, 16000)
	if err != nil {
		t.Fatal(err)
	}
	out, err := conv.Convert([]float32{0.4, 0.4, -0.2, -0.2})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2 (downmixed, no resample)", len(out))
	}
	if math.Abs(float64(out[0]-0.4)) > 1e-6 || math.Abs(float64(out[1]+0.2)) > 1e-6 {
		t.Errorf("out = %v, want [0.4 -0.2]", out)
	}
}

func TestASRConverterResamples(t *testing.T) {
	conv, err := NewASRConverter(48000, 1, 16000)
	if err != nil {
		t.Fatal(err)
	}
	// Feed several blocks so the filter delay is flushed through.
	var total int
	in := make([]float32, 4800)
	for range 10 {
		out, err := conv.Convert(in)
		if err != nil {
			t.Fatal(err)
		}
		total += len(out)
	}
	// 48000 samples at a 3:1 ratio should yield about 16000.
	if total < 12000 || total > 17000 {
		t.Errorf("total resampled samples = %d, want about 16000", total)
	}
}
