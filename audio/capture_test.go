package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func tonePCM(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(math.Sin(2*math.Pi*330*float64(i)/16000) * 6000)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestCaptureReleasesDevice(t *testing.T) {
	fake := NewFakeContextPCM(tonePCM(10000))
	c := NewController(fake)

	h, err := c.BeginCapture(context.Background())
	if err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}
	if fake.Live() != 1 {
		t.Fatalf("live devices = %d, want 1", fake.Live())
	}
	if !c.Recording() {
		t.Error("Recording() = false during capture")
	}

	art, err := c.EndCapture(h)
	if err != nil {
		t.Fatalf("EndCapture: %v", err)
	}
	if fake.Live() != 0 {
		t.Errorf("live devices after EndCapture = %d, want 0", fake.Live())
	}
	if c.Recording() {
		t.Error("Recording() = true after EndCapture")
	}
	if art.ContentType != "audio/flac" {
		t.Errorf("ContentType = %q, want audio/flac", art.ContentType)
	}
	if art.Filename != "audio.flac" {
		t.Errorf("Filename = %q, want audio.flac", art.Filename)
	}
	if len(art.Data) < 4 || string(art.Data[:4]) != "fLaC" {
		t.Error("artifact is not FLAC")
	}
	if art.Duration <= 0 {
		t.Errorf("Duration = %v, want > 0", art.Duration)
	}
	if art.Level <= 0 {
		t.Errorf("Level = %v, want > 0", art.Level)
	}
}

func TestCaptureSecondBeginRejected(t *testing.T) {
	fake := NewFakeContextPCM(tonePCM(100))
	c := NewController(fake)

	h, err := c.BeginCapture(context.Background())
	if err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}
	defer h.Release()

	if _, err := c.BeginCapture(context.Background()); !errors.Is(err, ErrCaptureInProgress) {
		t.Fatalf("second BeginCapture err = %v, want ErrCaptureInProgress", err)
	}
	if fake.Opened() != 1 {
		t.Errorf("opened = %d, want 1", fake.Opened())
	}
}

func TestCapturePermissionDenied(t *testing.T) {
	fake := NewFakeContextPCM(nil)
	fake.Deny(errors.New("Permission denied by user"))
	c := NewController(fake)

	_, err := c.BeginCapture(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if fake.Live() != 0 {
		t.Errorf("live devices = %d, want 0", fake.Live())
	}
	if c.Recording() {
		t.Error("Recording() = true after failed begin")
	}

	fake.Deny(errors.New("no such device"))
	if _, err := c.BeginCapture(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}

	fake.Deny(nil)
	h, err := c.BeginCapture(context.Background())
	if err != nil {
		t.Fatalf("BeginCapture after allow: %v", err)
	}
	h.Release()
}

func TestCaptureCanceledContext(t *testing.T) {
	fake := NewFakeContextPCM(nil)
	c := NewController(fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.BeginCapture(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if fake.Opened() != 0 {
		t.Errorf("opened = %d, want 0", fake.Opened())
	}
}

func TestHandleReleaseIdempotent(t *testing.T) {
	fake := NewFakeContextPCM(tonePCM(500))
	c := NewController(fake)

	h, err := c.BeginCapture(context.Background())
	if err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}
	h.Release()
	h.Release()
	c.Close()

	if fake.Released() != 1 {
		t.Errorf("released = %d, want 1", fake.Released())
	}
	if _, err := c.EndCapture(h); err != nil {
		// Ending after a bare release still succeeds once; the device stays closed.
		t.Fatalf("EndCapture after Release: %v", err)
	}
	if _, err := c.EndCapture(h); !errors.Is(err, ErrNoCapture) {
		t.Errorf("second EndCapture err = %v, want ErrNoCapture", err)
	}
	if fake.Released() != 1 {
		t.Errorf("released = %d, want 1", fake.Released())
	}
}

func TestControllerCloseReleasesActive(t *testing.T) {
	fake := NewFakeContextPCM(tonePCM(500))
	c := NewController(fake)

	if _, err := c.BeginCapture(context.Background()); err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}
	c.Close()
	if fake.Live() != 0 {
		t.Errorf("live devices after Close = %d, want 0", fake.Live())
	}
	if c.Recording() {
		t.Error("Recording() = true after Close")
	}
}

func TestDiscardIdempotent(t *testing.T) {
	fake := NewFakeContextPCM(tonePCM(2000))
	c := NewController(fake)

	h, err := c.BeginCapture(context.Background())
	if err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}
	art, err := c.EndCapture(h)
	if err != nil {
		t.Fatalf("EndCapture: %v", err)
	}
	c.Discard(art)
	c.Discard(art)
	if !art.Released() {
		t.Error("artifact not released")
	}
	if art.Data != nil {
		t.Error("artifact data retained after Discard")
	}
	c.Discard(nil)
}

func TestEndCaptureForeignHandle(t *testing.T) {
	a := NewController(NewFakeContextPCM(nil))
	b := NewController(NewFakeContextPCM(nil))

	h, err := a.BeginCapture(context.Background())
	if err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}
	defer h.Release()

	if _, err := b.EndCapture(h); !errors.Is(err, ErrNoCapture) {
		t.Errorf("err = %v, want ErrNoCapture", err)
	}
	if _, err := b.EndCapture(nil); !errors.Is(err, ErrNoCapture) {
		t.Errorf("nil handle err = %v, want ErrNoCapture", err)
	}
}

func TestLevelCallback(t *testing.T) {
	var levels []float64
	fake := NewFakeContextPCM(tonePCM(4096))
	c := NewController(fake, WithLevel(func(l float64) { levels = append(levels, l) }))

	h, err := c.BeginCapture(context.Background())
	if err != nil {
		t.Fatalf("BeginCapture: %v", err)
	}
	if _, err := c.EndCapture(h); err != nil {
		t.Fatalf("EndCapture: %v", err)
	}
	if len(levels) == 0 {
		t.Fatal("no levels reported")
	}
	for _, l := range levels {
		if l <= 0 || l > 1 {
			t.Errorf("level %v out of range", l)
		}
	}
}

func TestClassify(t *testing.T) {
	for _, tt := range []struct {
		msg  string
		want error
	}{
		{"access denied", ErrPermissionDenied},
		{"operation not permitted", ErrPermissionDenied},
		{"device busy", ErrDeviceUnavailable},
		{"no source", ErrDeviceUnavailable},
		{"cannot access device hw:1", ErrDeviceUnavailable},
	} {
		t.Run(tt.msg, func(t *testing.T) {
			if err := classify("op", errors.New(tt.msg)); !errors.Is(err, tt.want) {
				t.Errorf("classify(%q) = %v, want %v", tt.msg, err, tt.want)
			}
		})
	}
	if classify("op", nil) != nil {
		t.Error("classify(nil) != nil")
	}
}

func TestIsBluetooth(t *testing.T) {
	for _, tt := range []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Built-in Microphone", false},
		{"Jabra Evolve 65", true},
	} {
		if got := IsBluetooth(tt.name); got != tt.want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFindDevice(t *testing.T) {
	fake := NewFakeContextPCM(nil)
	d, err := FindDevice(fake, "")
	if err != nil || d != nil {
		t.Fatalf("FindDevice(\"\") = %v, %v", d, err)
	}
	d, err = FindDevice(fake, "fake")
	if err != nil || d == nil || d.Name != "fake" {
		t.Fatalf("FindDevice(fake) = %v, %v", d, err)
	}
	if _, err := FindDevice(fake, "missing"); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("err = %v, want ErrDeviceUnavailable", err)
	}
}

func TestAmplifyClips(t *testing.T) {
	got := amplify([]int16{0, 100, -100, 10000, -10000}, 8)
	want := []int16{0, 800, -800, 32767, -32768}
	for i, w := range want {
		if s := int16(binary.LittleEndian.Uint16(got[i*2:])); s != w {
			t.Errorf("sample %d = %d, want %d", i, s, w)
		}
	}
}
