// Package beep plays short cues when recording starts, stops or fails.
package beep

import (
	"math"
	"sync/atomic"
)

var disabled atomic.Bool

// Disable silences every cue, e.g. for --no-beep.
func Disable() { disabled.Store(true) }

func Enabled() bool { return !disabled.Load() }

const sampleRate = 44100

// cue describes one decaying sine tick. A repeat > 1 plays it again after gap.
type cue struct {
	freq     float64
	duration float64
	volume   float64
	decay    float64
	repeat   int
	gap      float64
}

var (
	// recording started: high and short
	startCue = cue{freq: 1200, duration: 0.2, volume: 0.5, decay: 60, repeat: 1}
	// recording stopped: a little lower
	endCue = cue{freq: 900, duration: 0.2, volume: 0.5, decay: 40, repeat: 1}
	// submit failed or microphone unavailable: low double beep
	errorCue = cue{freq: 350, duration: 0.08, volume: 0.6, decay: 30, repeat: 2, gap: 0.05}
)

// samples renders c as mono signed 16-bit samples.
func (c cue) samples(rate int) []int16 {
	n := int(float64(rate) * c.duration)
	tick := make([]int16, n)
	for i := range tick {
		t := float64(i) / float64(rate)
		envelope := math.Exp(-t * c.decay)
		tick[i] = int16(math.Sin(2*math.Pi*c.freq*t) * 32767 * c.volume * envelope)
	}
	if c.repeat <= 1 {
		return tick
	}
	gap := make([]int16, int(float64(rate)*c.gap))
	out := make([]int16, 0, len(tick)*c.repeat+len(gap)*(c.repeat-1))
	for i := 0; i < c.repeat; i++ {
		if i > 0 {
			out = append(out, gap...)
		}
		out = append(out, tick...)
	}
	return out
}

func PlayStart() {
	if Enabled() {
		play(startCue)
	}
}

func PlayEnd() {
	if Enabled() {
		play(endCue)
	}
}

func PlayError() {
	if Enabled() {
		play(errorCue)
	}
}
