//go:build !linux

package beep

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"fono/log"
)

var (
	initOnce sync.Once
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	// read from the device callback
	current atomic.Pointer[[]byte]
	pos     atomic.Uint32
	playMu  sync.Mutex
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: onData})
	return err
}

func initPlayback() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Warnf("beep: malgo context: %v", err)
		return
	}
	if err := initDevice(); err != nil {
		log.Warnf("beep: playback device: %v", err)
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func onData(out, _ []byte, frames uint32) {
	clear(out)
	samples := current.Load()
	if samples == nil {
		return
	}
	p := pos.Load()
	remaining := uint32(len(*samples)) - p
	if remaining == 0 {
		current.Store(nil)
		return
	}
	n := min(frames*2, remaining)
	copy(out[:n], (*samples)[p:p+n])
	pos.Store(p + n)
}

func toBytes(s []int16) []byte {
	b := make([]byte, len(s)*2)
	for i, v := range s {
		b[i*2] = byte(v)
		b[i*2+1] = byte(v >> 8)
	}
	return b
}

func play(c cue) {
	initOnce.Do(initPlayback)
	if malgoCtx == nil {
		return
	}
	samples := toBytes(c.samples(sampleRate))

	playMu.Lock()
	defer playMu.Unlock()
	if device == nil {
		return
	}
	device.Stop()
	pos.Store(0)
	current.Store(&samples)
	if err := device.Start(); err == nil {
		return
	}
	// the device can go stale after sleep; rebuild once
	device.Uninit()
	if err := initDevice(); err != nil || device.Start() != nil {
		current.Store(nil)
		log.Warnf("beep: restarting playback device failed")
	}
}
