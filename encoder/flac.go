package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

var ErrClosed = errors.New("flac encoder closed")

// FlacEncoder packages mono PCM16 blocks into an in-memory FLAC stream,
// the format the training service accepts for submitted recordings.
type FlacEncoder struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	enc        *flac.Encoder
	frames     uint64
	encodeTime time.Duration
	closed     bool
}

func streamInfo() *meta.StreamInfo {
	return &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    SampleRate,
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
	}
}

func NewFlac() (*FlacEncoder, error) {
	e := &FlacEncoder{}
	enc, err := flac.NewEncoder(&e.buf, streamInfo())
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	// lets the library pick fixed predictors over the verbatim hint below
	enc.EnablePredictionAnalysis(true)
	e.enc = enc
	return e, nil
}

// monoFrame wraps one block of samples as a single-subframe FLAC frame.
func monoFrame(block []int16) *frame.Frame {
	samples := make([]int32, len(block))
	for i, s := range block {
		samples[i] = int32(s)
	}
	return &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    SampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples,
			NSamples:  len(block),
		}},
	}
}

func (e *FlacEncoder) EncodeBlock(block []int16) error {
	if len(block) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if err := e.enc.WriteFrame(monoFrame(block)); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	e.frames += uint64(len(block))
	return nil
}

// Close flushes the stream. Later calls are no-ops.
func (e *FlacEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.enc.Close()
}

func (e *FlacEncoder) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.Bytes()
}

func (e *FlacEncoder) TotalFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

func (e *FlacEncoder) AddEncodeTime(d time.Duration) {
	e.mu.Lock()
	e.encodeTime += d
	e.mu.Unlock()
}

func (e *FlacEncoder) EncodeTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encodeTime
}

func (e *FlacEncoder) ContentType() string { return "audio/flac" }

func (e *FlacEncoder) Ext() string { return "flac" }
