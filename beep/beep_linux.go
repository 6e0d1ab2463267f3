//go:build linux

package beep

import (
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"

	"fono/log"
)

var (
	cacheMu sync.Mutex
	cache   = map[cue][]int16{}
)

// stereo returns the interleaved L/R rendering of c, cached per cue.
func stereo(c cue) []int16 {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if s, ok := cache[c]; ok {
		return s
	}
	mono := c.samples(sampleRate)
	s := make([]int16, len(mono)*2)
	for i, v := range mono {
		s[i*2] = v
		s[i*2+1] = v
	}
	cache[c] = s
	return s
}

func play(c cue) {
	go playSamples(stereo(c))
}

func playSamples(samples []int16) {
	if len(samples) == 0 {
		return
	}
	client, err := pulse.NewClient(pulse.ClientApplicationName("fono"))
	if err != nil {
		log.Warnf("beep: pulse client: %v", err)
		return
	}
	defer client.Close()

	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	stream, err := client.NewPlayback(reader,
		pulse.PlaybackStereo,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm), uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		log.Warnf("beep: pulse playback: %v", err)
		return
	}
	stream.Start()
	stream.Drain()
	stream.Stop()
	stream.Close()
}
