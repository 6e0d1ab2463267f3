package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"fono/encoder"
)

// Artifact is one finished recording, encoded and ready for upload.
type Artifact struct {
	Data        []byte
	ContentType string
	Filename    string
	Duration    time.Duration
	Level       float64 // peak RMS seen while recording

	released atomic.Bool
}

// Release drops the encoded bytes. Safe to call more than once.
func (a *Artifact) Release() {
	if a == nil {
		return
	}
	if a.released.CompareAndSwap(false, true) {
		a.Data = nil
	}
}

func (a *Artifact) Released() bool {
	return a == nil || a.released.Load()
}

type ControllerOption func(*Controller)

// WithDevice selects the capture device. Nil means the system default.
func WithDevice(d *DeviceInfo) ControllerOption {
	return func(c *Controller) { c.device = d }
}

// WithLevel registers a callback receiving the RMS level of each PCM chunk.
func WithLevel(fn func(level float64)) ControllerOption {
	return func(c *Controller) { c.onLevel = fn }
}

// WithEncoder overrides the encoder used to package recordings.
func WithEncoder(fn func() (encoder.Encoder, error)) ControllerOption {
	return func(c *Controller) { c.newEncoder = fn }
}

// Controller owns the microphone. At most one Handle is live at a time and
// every Handle closes its device exactly once.
type Controller struct {
	ctx        Context
	device     *DeviceInfo
	config     CaptureConfig
	onLevel    func(float64)
	newEncoder func() (encoder.Encoder, error)

	mu     sync.Mutex
	active *Handle
}

func NewController(ctx Context, opts ...ControllerOption) *Controller {
	c := &Controller{
		ctx: ctx,
		config: CaptureConfig{
			SampleRate: encoder.SampleRate,
			Channels:   encoder.Channels,
		},
		newEncoder: func() (encoder.Encoder, error) { return encoder.NewFlac() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle is an in-progress recording.
type Handle struct {
	c       *Controller
	dev     CaptureDevice
	enc     encoder.Encoder
	started time.Time

	mu        sync.Mutex
	sampleBuf []int16
	stopped   bool
	peak      float64

	blockChan  chan []int16
	encodeDone chan struct{}
	encodeErr  error

	releaseOnce sync.Once
	ended       atomic.Bool
}

// BeginCapture acquires the microphone and starts recording.
func (c *Controller) BeginCapture(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return nil, ErrCaptureInProgress
	}
	if c.ctx == nil {
		return nil, fmt.Errorf("no audio context: %w", ErrDeviceUnavailable)
	}

	enc, err := c.newEncoder()
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	dev, err := c.ctx.NewCapture(c.device, c.config)
	if err != nil {
		return nil, classify("opening capture", err)
	}

	h := &Handle{
		c:          c,
		dev:        dev,
		enc:        enc,
		started:    time.Now(),
		blockChan:  make(chan []int16, 64),
		encodeDone: make(chan struct{}),
	}

	go func() {
		defer close(h.encodeDone)
		for block := range h.blockChan {
			if h.encodeErr != nil {
				continue
			}
			start := time.Now()
			if err := h.enc.EncodeBlock(block); err != nil {
				h.encodeErr = err
			}
			h.enc.AddEncodeTime(time.Since(start))
		}
	}()

	dev.SetCallback(h.feed)
	if err := dev.Start(); err != nil {
		h.shutdown()
		return nil, classify("starting capture", err)
	}

	c.active = h
	return h, nil
}

// EndCapture stops recording, releases the device and returns the encoded audio.
func (c *Controller) EndCapture(h *Handle) (*Artifact, error) {
	if h == nil || h.c != c || !h.ended.CompareAndSwap(false, true) {
		return nil, ErrNoCapture
	}
	h.Release()

	if h.encodeErr != nil {
		return nil, fmt.Errorf("encoding audio: %w", h.encodeErr)
	}
	if err := h.enc.Close(); err != nil {
		return nil, fmt.Errorf("finalizing audio: %w", err)
	}

	data := h.enc.Bytes()
	buf := make([]byte, len(data))
	copy(buf, data)

	h.mu.Lock()
	peak := h.peak
	h.mu.Unlock()

	return &Artifact{
		Data:        buf,
		ContentType: h.enc.ContentType(),
		Filename:    "audio." + h.enc.Ext(),
		Duration:    encoder.Duration(h.enc.TotalFrames()),
		Level:       peak,
	}, nil
}

// Discard releases an artifact. Safe to call more than once.
func (c *Controller) Discard(a *Artifact) {
	a.Release()
}

// Recording reports whether a capture is in progress.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// DeviceName names the device recordings come from.
func (c *Controller) DeviceName() string {
	if c.device != nil {
		return c.device.Name
	}
	return defaultDeviceName
}

// Close releases any capture still in progress.
func (c *Controller) Close() {
	c.mu.Lock()
	h := c.active
	c.mu.Unlock()
	if h != nil {
		h.Release()
	}
}

// Release stops the device and frees the microphone. Every exit path ends
// here; only the first call has an effect.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.releaseOnce.Do(func() {
		h.shutdown()
		h.c.mu.Lock()
		if h.c.active == h {
			h.c.active = nil
		}
		h.c.mu.Unlock()
	})
}

// Elapsed is the time since recording started.
func (h *Handle) Elapsed() time.Duration {
	return time.Since(h.started)
}

func (h *Handle) shutdown() {
	h.dev.Stop()
	h.dev.ClearCallback()
	h.dev.Close()

	h.mu.Lock()
	if !h.stopped {
		h.stopped = true
		if len(h.sampleBuf) > 0 {
			partial := make([]int16, len(h.sampleBuf))
			copy(partial, h.sampleBuf)
			h.sampleBuf = nil
			h.blockChan <- partial
		}
		close(h.blockChan)
	}
	h.mu.Unlock()
	<-h.encodeDone
}

func (h *Handle) feed(data []byte, _ uint32) {
	if len(data) < 2 {
		return
	}

	var sumSquares float64
	n := len(data) / 2

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	for i := 0; i+1 < len(data); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(data[i:]))
		h.sampleBuf = append(h.sampleBuf, sample)
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	rms := math.Sqrt(sumSquares / float64(n))
	if rms > h.peak {
		h.peak = rms
	}
	for len(h.sampleBuf) >= encoder.BlockSize {
		block := make([]int16, encoder.BlockSize)
		copy(block, h.sampleBuf[:encoder.BlockSize])
		h.sampleBuf = h.sampleBuf[encoder.BlockSize:]
		h.blockChan <- block
	}
	h.mu.Unlock()

	if fn := h.c.onLevel; fn != nil {
		fn(rms)
	}
}
