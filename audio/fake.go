package audio

import (
	"sync"
	"sync/atomic"
)

// fakeChunk is the number of samples handed to the callback per call.
const fakeChunk = 1024

// FakeContext replays PCM instead of opening a microphone. It counts device
// opens and closes so callers can check that every capture was released.
type FakeContext struct {
	pcm []byte

	mu      sync.Mutex
	denyErr error

	opened   atomic.Int32
	released atomic.Int32
}

// NewFakeContextPCM replays raw little-endian PCM16 mono samples.
func NewFakeContextPCM(pcm []byte) *FakeContext {
	return &FakeContext{pcm: pcm}
}

// Deny makes subsequent NewCapture calls fail with err. Pass nil to allow again.
func (f *FakeContext) Deny(err error) {
	f.mu.Lock()
	f.denyErr = err
	f.mu.Unlock()
}

// Opened reports how many capture devices were created.
func (f *FakeContext) Opened() int { return int(f.opened.Load()) }

// Released reports how many capture devices were closed.
func (f *FakeContext) Released() int { return int(f.released.Load()) }

// Live reports devices opened but not yet closed.
func (f *FakeContext) Live() int { return f.Opened() - f.Released() }

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	deny := f.denyErr
	f.mu.Unlock()
	if deny != nil {
		return nil, classify("fake capture", deny)
	}
	f.opened.Add(1)
	return &FakeCapture{owner: f}, nil
}

// FakeCapture delivers the owner's whole PCM buffer synchronously on Start.
type FakeCapture struct {
	owner *FakeContext

	mu      sync.Mutex
	cb      DataCallback
	started bool
	once    sync.Once
}

func (c *FakeCapture) SetCallback(cb DataCallback) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *FakeCapture) ClearCallback() { c.SetCallback(nil) }

func (c *FakeCapture) DeviceName() string { return "fake" }

func (c *FakeCapture) Start() error {
	c.mu.Lock()
	cb := c.cb
	again := c.started
	c.started = true
	c.mu.Unlock()
	if cb == nil || again {
		return nil
	}

	pcm := c.owner.pcm
	step := fakeChunk * 2
	for pos := 0; pos < len(pcm); pos += step {
		chunk := append([]byte(nil), pcm[pos:min(pos+step, len(pcm))]...)
		cb(chunk, uint32(len(chunk)/2))
	}
	return nil
}

func (c *FakeCapture) Stop() {}

func (c *FakeCapture) Close() {
	c.once.Do(func() {
		c.ClearCallback()
		c.owner.released.Add(1)
	})
}
