package audio

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDecodeKey(t *testing.T) {
	tests := []struct {
		in   []byte
		want pickAction
	}{
		{[]byte{'\r'}, pickConfirm},
		{[]byte{3}, pickCancel},
		{[]byte{'q'}, pickCancel},
		{[]byte{'j'}, pickDown},
		{[]byte{'k'}, pickUp},
		{[]byte{0x1b, '[', 'A'}, pickUp},
		{[]byte{0x1b, '[', 'B'}, pickDown},
		{[]byte{0x1b, '[', 'C'}, pickNone},
		{[]byte{'x'}, pickNone},
	}
	for _, tt := range tests {
		if got := decodeKey(tt.in); got != tt.want {
			t.Errorf("decodeKey(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// keyReader returns one key per Read call, like a raw terminal.
type keyReader struct{ keys [][]byte }

func (r *keyReader) Read(p []byte) (int, error) {
	if len(r.keys) == 0 {
		return 0, errors.New("eof")
	}
	n := copy(p, r.keys[0])
	r.keys = r.keys[1:]
	return n, nil
}

func TestPickerRun(t *testing.T) {
	devices := []DeviceInfo{{ID: "a", Name: "Built-in"}, {ID: "b", Name: "AirPods Pro"}, {ID: "c", Name: "USB Mic"}}

	p := &devicePicker{devices: devices}
	in := &keyReader{keys: [][]byte{{'j'}, {'j'}, {'j'}, {0x1b, '[', 'A'}, {'\r'}}}
	var out bytes.Buffer
	got, err := p.run(in, &out)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "b" {
		t.Errorf("picked %q, want b", got.ID)
	}
	if !strings.Contains(out.String(), "bluetooth") {
		t.Error("bluetooth warning not rendered")
	}

	p = &devicePicker{devices: devices}
	_, err = p.run(&keyReader{keys: [][]byte{{'q'}}}, &out)
	if !errors.Is(err, ErrSelectionCanceled) {
		t.Errorf("err = %v, want ErrSelectionCanceled", err)
	}
}
