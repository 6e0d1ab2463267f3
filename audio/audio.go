package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

const defaultDeviceName = "system default"

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrCaptureInProgress = errors.New("capture already in progress")
	ErrNoCapture         = errors.New("no capture in progress")
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var deniedKeywords = []string{"denied", "permission", "not permitted", "eacces"}

// classify maps a backend failure onto the capture error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	lower := strings.ToLower(err.Error())
	for _, kw := range deniedKeywords {
		if strings.Contains(lower, kw) {
			return fmt.Errorf("%s: %w: %v", op, ErrPermissionDenied, err)
		}
	}
	return fmt.Errorf("%s: %w: %v", op, ErrDeviceUnavailable, err)
}

// amplify scales samples by gain with clipping and returns them as
// little-endian PCM16 bytes.
func amplify(samples []int16, gain int32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int32(s) * gain
		v = max(min(v, math.MaxInt16), math.MinInt16)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// FindDevice returns the device with the given name, or nil when absent.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, classify("enumerating devices", err)
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: device %q not found", ErrDeviceUnavailable, name)
}
