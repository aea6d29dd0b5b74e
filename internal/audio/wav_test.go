package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestWAVWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")

	w, err := NewWAVWriter(path, 16000, 1)
	if err != nil {
		t.Fatal(err)
	}
	frame := []float32{0, 0.25, 0.5, -0.5, -0.25}
	if err := w.WriteFrame(frame); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := ReadWAV(path)
	if err != nil {
		t.Fatal(err)
	}
	if data.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", data.SampleRate)
	}
	if data.Channels != 1 {
		t.Errorf("Channels = %d, want 1", data.Channels)
	}
	if len(data.Samples) != len(frame) {
		t.Fatalf("len(Samples) = %d, want %d", len(data.Samples), len(frame))
	}
	for i, want := range frame {
		if math.Abs(float64(data.Samples[i]-want)) > 1e-3 {
			t.Errorf("Samples[%d] = %v, want about %v", i, data.Samples[i], want)
		}
	}
}

func TestWAVWriterPatchesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")

	w, err := NewWAVWriter(path, 48000, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFrame(make([]float32, 96)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(wavHeaderSize + 96*2); info.Size() != want {
		t.Errorf("file size = %d, want %d", info.Size(), want)
	}
}

func TestWAVWriterClampsSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")

	w, err := NewWAVWriter(path, 16000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFrame([]float32{2.0, -2.0}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := ReadWAV(path)
	if err != nil {
		t.Fatal(err)
	}
	if data.Samples[0] < 0.99 {
		t.Errorf("Samples[0] = %v, want full scale", data.Samples[0])
	}
	if data.Samples[1] > -0.99 {
		t.Errorf("Samples[1] = %v, want negative full scale", data.Samples[1])
	}
}

func TestWAVWriterKeepsHeaderIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")

	w, err := NewWAVWriter(path, 16000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteFrame([]float32{0.5, 0.5, 0.5, 0.5}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := wavHeaderSize + 4*2; len(raw) != want {
		t.Fatalf("len(raw) = %d, want %d", len(raw), want)
	}
	if string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		t.Errorf("header markers = %q %q, want RIFF WAVE", raw[0:4], raw[8:12])
	}
	if string(raw[36:40]) != "data" {
		t.Errorf("data marker = %q, want data", raw[36:40])
	}

	data, err := ReadWAV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data.Samples) != 4 {
		t.Fatalf("len(Samples) = %d, want 4", len(data.Samples))
	}
	if math.Abs(float64(data.Samples[0]-0.5)) > 1e-3 {
		t.Errorf("Samples[0] = %v, want about 0.5", data.Samples[0])
	}
}

func TestReadWAVRejectsOversizedChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huge.wav")

	// Valid RIFF/WAVE preamble followed by a chunk claiming 4 GiB of data.
	raw := []byte("RIFF\x24\x00\x00\x00WAVEdata\xff\xff\xff\xff")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadWAV(path); err == nil {
		t.Error("ReadWAV(oversized chunk) = nil error, want failure")
	}
}

func TestReadWAVRejectsShortFmtChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shortfmt.wav")

	raw := []byte("RIFF\x24\x00\x00\x00WAVEfmt \x04\x00\x00\x00\x01\x00\x01\x00")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadWAV(path); err == nil {
		t.Error("ReadWAV(short fmt chunk) = nil error, want failure")
	}
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("not a wav file at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadWAV(path); err == nil {
		t.Error("ReadWAV(garbage) = nil error, want failure")
	}
}

func TestReadWAVMissingFile(t *testing.T) {
	if _, err := ReadWAV(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Error("ReadWAV(missing) = nil error, want failure")
	}
}
