// Package vad implements lightweight energy-based voice activity detection
// over 16-bit little-endian mono PCM at 16kHz.
package vad

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// DefaultVoiceRMS is the energy threshold above which a buffer counts as
// voice. Tuned conservatively for headset input.
const DefaultVoiceRMS = 250.0

// smoothFrames is how many recent observations vote on the smoothed decision.
const smoothFrames = 4

// Detector flags buffers whose RMS energy crosses a threshold. Raw hits are
// timestamped for RecentlyActive; Observe additionally smooths over a short
// window so one hot or quiet buffer does not flip the decision.
type Detector struct {
	threshold float64

	mu        sync.Mutex
	win       []bool
	lastVoice time.Time
}

// NewDetector builds a detector. A non-positive threshold selects DefaultVoiceRMS.
func NewDetector(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultVoiceRMS
	}
	return &Detector{threshold: threshold}
}

// Observe scans one PCM buffer and reports the smoothed voice decision.
// Buffers shorter than 10ms are ignored.
func (d *Detector) Observe(pcm []byte) bool {
	const minSamples = 160 // 10ms at 16kHz
	if len(pcm) < minSamples*2 {
		return false
	}
	hit := rms(pcm) >= d.threshold

	d.mu.Lock()
	defer d.mu.Unlock()
	if hit {
		d.lastVoice = time.Now()
	}
	d.win = append(d.win, hit)
	if len(d.win) > smoothFrames {
		d.win = d.win[len(d.win)-smoothFrames:]
	}
	trueCount := 0
	for _, b := range d.win {
		if b {
			trueCount++
		}
	}
	return trueCount*2 >= len(d.win)
}

// RecentlyActive reports whether raw voice energy was seen within window.
func (d *Detector) RecentlyActive(window time.Duration) bool {
	d.mu.Lock()
	last := d.lastVoice
	d.mu.Unlock()
	return time.Since(last) <= window
}

// LastActive returns when voice energy was last seen.
func (d *Detector) LastActive() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastVoice
}

// MarkActive records voice activity now. The transcriber seeds this at
// connect so silence windows are measured from session start.
func (d *Detector) MarkActive() {
	d.mu.Lock()
	d.lastVoice = time.Now()
	d.mu.Unlock()
}

// Reset clears the smoothing window and the last-voice marker.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.win = d.win[:0]
	d.lastVoice = time.Time{}
	d.mu.Unlock()
}

// rms computes root-mean-square energy, scanning every other sample and
// sparser still on large buffers to bound CPU.
func rms(pcm []byte) float64 {
	step := 2
	if len(pcm) > 3200 {
		step = 4
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sumSquares / float64(count))
}
