package vad

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

// pcmSine builds ms milliseconds of a sine tone as 16kHz PCM16LE.
func pcmSine(freq float64, ms int, amp float64) []byte {
	n := 16000 * ms / 1000
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(amp * math.Sin(2*math.Pi*freq*float64(i)/16000))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func TestDetector_LoudFrameMarksVoice(t *testing.T) {
	d := NewDetector(0)
	if !d.Observe(pcmSine(440, 20, 8000)) {
		t.Fatal("loud frame not detected as voice")
	}
	if !d.RecentlyActive(time.Second) {
		t.Fatal("last voice time not updated")
	}
}

func TestDetector_SilenceIsNotVoice(t *testing.T) {
	d := NewDetector(0)
	if d.Observe(make([]byte, 640)) {
		t.Fatal("silence detected as voice")
	}
	if d.RecentlyActive(time.Second) {
		t.Fatal("silence must not mark voice activity")
	}
}

func TestDetector_ShortBufferIgnored(t *testing.T) {
	d := NewDetector(0)
	if d.Observe(pcmSine(440, 5, 8000)) {
		t.Fatal("sub-10ms buffer should be ignored")
	}
	if d.RecentlyActive(time.Second) {
		t.Fatal("ignored buffer must not mark voice activity")
	}
}

func TestDetector_SmoothingRidesThroughDip(t *testing.T) {
	d := NewDetector(0)
	d.Observe(pcmSine(440, 20, 8000))
	d.Observe(pcmSine(440, 20, 8000))
	// One quiet buffer inside a voiced run should not flip the decision.
	if !d.Observe(make([]byte, 640)) {
		t.Fatal("single dip flipped smoothed decision")
	}
}

func TestDetector_Reset(t *testing.T) {
	d := NewDetector(0)
	d.Observe(pcmSine(440, 20, 8000))
	d.Reset()
	if d.RecentlyActive(time.Minute) {
		t.Fatal("reset did not clear last voice time")
	}
}
