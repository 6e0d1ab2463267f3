//go:build linux

package audio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

// Pulse sources deliver quiet PCM for speech; the analysis service scores
// better on a boosted signal.
const (
	pulseGain      = 8
	pulseLatency   = 0.05
	pulseSourceVol = 3
)

type pulseContext struct {
	client *pulse.Client
}

func NewContext() (Context, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("fono"))
	if err != nil {
		return nil, classify("pulse connect", err)
	}
	return &pulseContext{client: c}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, classify("pulse list sources", err)
	}
	devices := make([]DeviceInfo, 0, len(sources))
	for _, s := range sources {
		devices = append(devices, DeviceInfo{ID: s.ID(), Name: s.Name()})
	}
	return devices, nil
}

// NewCapture resolves the source up front so a vanished device fails here
// rather than on Start.
func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	c := &pulseCapture{client: p.client, config: config, name: defaultDeviceName}
	if device != nil {
		source, err := p.client.SourceByID(device.ID)
		if err != nil || source == nil {
			return nil, fmt.Errorf("pulse source %q: %w", device.Name, ErrDeviceUnavailable)
		}
		c.source = source
		c.name = device.Name
	}
	return c, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

type pulseCapture struct {
	client *pulse.Client
	source *pulse.Source
	config CaptureConfig
	name   string

	callback atomic.Pointer[DataCallback]

	mu     sync.Mutex
	stream *pulse.RecordStream
	closed bool
}

func (c *pulseCapture) write(buf []int16) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if cb := c.callback.Load(); cb != nil {
		(*cb)(amplify(buf, pulseGain), uint32(len(buf)))
	}
	return len(buf), nil
}

func (c *pulseCapture) options() []pulse.RecordOption {
	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(int(c.config.SampleRate)),
		pulse.RecordLatency(pulseLatency),
		pulse.RecordRawOption(func(r *proto.CreateRecordStream) {
			r.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm) * pulseSourceVol}
		}),
	}
	if c.source != nil {
		opts = append(opts, pulse.RecordSource(c.source))
	}
	return opts
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("pulse capture closed: %w", ErrDeviceUnavailable)
	}
	if c.stream != nil {
		return errors.New("pulse capture already started")
	}

	stream, err := c.client.NewRecord(pulse.Int16Writer(c.write), c.options()...)
	if err != nil {
		return classify("pulse record", err)
	}
	stream.Start()
	c.stream = stream
	return nil
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return
	}
	c.stream.Stop()
	c.stream.Close()
	c.stream = nil
}

func (c *pulseCapture) Close() {
	c.Stop()
	c.ClearCallback()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *pulseCapture) SetCallback(cb DataCallback) { c.callback.Store(&cb) }

func (c *pulseCapture) ClearCallback() { c.callback.Store(nil) }

func (c *pulseCapture) DeviceName() string { return c.name }
