package beep

import "testing"

func TestCueSamples(t *testing.T) {
	got := startCue.samples(1000)
	if len(got) != 200 {
		t.Fatalf("len = %d, want 200", len(got))
	}
	if got[0] != 0 {
		t.Errorf("first sample = %d, want 0", got[0])
	}

	var peak int16
	for _, s := range got {
		if s > peak {
			peak = s
		}
	}
	if peak <= 0 || float64(peak) > 32767*startCue.volume {
		t.Errorf("peak = %d, want within volume", peak)
	}
}

func TestDoubleCue(t *testing.T) {
	got := errorCue.samples(1000)
	tick := int(1000 * errorCue.duration)
	gap := int(1000 * errorCue.gap)
	if len(got) != 2*tick+gap {
		t.Fatalf("len = %d, want %d", len(got), 2*tick+gap)
	}
	for i := tick; i < tick+gap; i++ {
		if got[i] != 0 {
			t.Fatalf("gap sample %d = %d, want silence", i, got[i])
		}
	}
}

func TestDisable(t *testing.T) {
	if !Enabled() {
		t.Fatal("beeps disabled by default")
	}
	Disable()
	t.Cleanup(func() { disabled.Store(false) })
	if Enabled() {
		t.Error("Enabled() after Disable")
	}
	// must not reach the audio backend
	PlayStart()
	PlayEnd()
	PlayError()
}
