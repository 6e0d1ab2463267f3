//go:build !linux

package audio

import (
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, classify("malgo init", err)
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	infos, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, classify("malgo devices", err)
	}
	out := make([]DeviceInfo, 0, len(infos))
	for _, d := range infos {
		out = append(out, DeviceInfo{ID: hex.EncodeToString(d.ID.Pointer()[:]), Name: d.Name()})
	}
	return out, nil
}

// captureConfig builds a mono S16 capture config, pinned to device when set.
func captureConfig(device *DeviceInfo, cfg CaptureConfig) (malgo.DeviceConfig, error) {
	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = malgo.FormatS16
	dc.Capture.Channels = cfg.Channels
	dc.SampleRate = cfg.SampleRate
	if device == nil {
		return dc, nil
	}
	raw, err := hex.DecodeString(device.ID)
	if err != nil {
		return dc, fmt.Errorf("device id %q: %w", device.ID, ErrDeviceUnavailable)
	}
	var id malgo.DeviceID
	copy(id[:], raw)
	dc.Capture.DeviceID = id.Pointer()
	return dc, nil
}

func (m *malgoContext) NewCapture(device *DeviceInfo, cfg CaptureConfig) (CaptureDevice, error) {
	dc, err := captureConfig(device, cfg)
	if err != nil {
		return nil, err
	}

	c := &malgoCapture{name: defaultDeviceName}
	if device != nil {
		c.name = device.Name
	}
	dev, err := malgo.InitDevice(m.ctx.Context, dc, malgo.DeviceCallbacks{Data: c.onData})
	if err != nil {
		return nil, classify("malgo device", err)
	}
	c.device = dev
	return c, nil
}

func (m *malgoContext) Close() {
	_ = m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	device  *malgo.Device
	name    string
	cb      atomic.Pointer[DataCallback]
	running atomic.Bool
	once    sync.Once
}

func (c *malgoCapture) onData(_, data []byte, frames uint32) {
	if cb := c.cb.Load(); cb != nil {
		(*cb)(data, frames)
	}
}

func (c *malgoCapture) Start() error {
	if !c.running.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.device.Start(); err != nil {
		c.running.Store(false)
		return classify("malgo start", err)
	}
	return nil
}

func (c *malgoCapture) Stop() {
	if c.running.CompareAndSwap(true, false) {
		_ = c.device.Stop()
	}
}

func (c *malgoCapture) Close() {
	c.once.Do(func() {
		c.ClearCallback()
		c.Stop()
		c.device.Uninit()
	})
}

func (c *malgoCapture) SetCallback(cb DataCallback) { c.cb.Store(&cb) }

func (c *malgoCapture) ClearCallback() { c.cb.Store(nil) }

func (c *malgoCapture) DeviceName() string { return c.name }
