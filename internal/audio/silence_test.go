package audio

import (
	"testing"
	"time"
)

var silenceTestConfig = SilenceConfig{
	Threshold:  0.01,
	DurationMs: 1000,
	RecoveryMs: 500,
}

func TestSilenceDetectorEntersAfterDuration(t *testing.T) {
	d := NewSilenceDetector()
	start := time.Now()

	ev := d.Update(0.001, silenceTestConfig, start)
	if ev.InSilence || ev.JustEntered {
		t.Errorf("first silent frame: InSilence=%v JustEntered=%v, want false false", ev.InSilence, ev.JustEntered)
	}

	ev = d.Update(0.001, silenceTestConfig, start.Add(500*time.Millisecond))
	if ev.InSilence {
		t.Error("below duration threshold: InSilence = true, want false")
	}

	ev = d.Update(0.001, silenceTestConfig, start.Add(1100*time.Millisecond))
	if !ev.JustEntered {
		t.Error("crossing duration threshold: JustEntered = false, want true")
	}
	if !ev.InSilence {
		t.Error("crossing duration threshold: InSilence = false, want true")
	}
	if ev.DurationMs < 1000 {
		t.Errorf("DurationMs = %d, want >= 1000", ev.DurationMs)
	}

	// JustEntered fires exactly once.
	ev = d.Update(0.001, silenceTestConfig, start.Add(1200*time.Millisecond))
	if ev.JustEntered {
		t.Error("second confirmed frame: JustEntered = true, want false")
	}
	if !ev.InSilence {
		t.Error("second confirmed frame: InSilence = false, want true")
	}
}

func TestSilenceDetectorRecovery(t *testing.T) {
	d := NewSilenceDetector()
	start := time.Now()

	d.Update(0.001, silenceTestConfig, start)
	d.Update(0.001, silenceTestConfig, start.Add(1100*time.Millisecond))

	// Audio returns but recovery has not lasted long enough yet.
	ev := d.Update(0.5, silenceTestConfig, start.Add(1200*time.Millisecond))
	if ev.JustRecovered {
		t.Error("recovery not confirmed yet: JustRecovered = true, want false")
	}
	if !ev.InSilence {
		t.Error("during recovery window: InSilence = false, want true")
	}

	ev = d.Update(0.5, silenceTestConfig, start.Add(1800*time.Millisecond))
	if !ev.JustRecovered {
		t.Error("recovery window elapsed: JustRecovered = false, want true")
	}
	if ev.TotalDurationMs < 1000 {
		t.Errorf("TotalDurationMs = %d, want >= 1000", ev.TotalDurationMs)
	}

	// Fully recovered, subsequent audio is plain.
	ev = d.Update(0.5, silenceTestConfig, start.Add(2*time.Second))
	if ev.InSilence || ev.JustRecovered {
		t.Errorf("after recovery: InSilence=%v JustRecovered=%v, want false false", ev.InSilence, ev.JustRecovered)
	}
}

func TestSilenceDetectorBlipDoesNotRecover(t *testing.T) {
	d := NewSilenceDetector()
	start := time.Now()

	d.Update(0.001, silenceTestConfig, start)
	d.Update(0.001, silenceTestConfig, start.Add(1100*time.Millisecond))

	// A short burst of audio, then silence again before RecoveryMs.
	d.Update(0.5, silenceTestConfig, start.Add(1200*time.Millisecond))
	ev := d.Update(0.001, silenceTestConfig, start.Add(1300*time.Millisecond))
	if !ev.InSilence {
		t.Error("after audio blip: InSilence = false, want true")
	}
	if ev.JustEntered {
		t.Error("after audio blip: JustEntered = true, want false (still same silence)")
	}
}

func TestSilenceDetectorReset(t *testing.T) {
	d := NewSilenceDetector()
	start := time.Now()

	d.Update(0.001, silenceTestConfig, start)
	d.Update(0.001, silenceTestConfig, start.Add(1100*time.Millisecond))
	d.Reset()

	ev := d.Update(0.001, silenceTestConfig, start.Add(1200*time.Millisecond))
	if ev.InSilence {
		t.Error("after Reset: InSilence = true, want detection to restart")
	}
}
