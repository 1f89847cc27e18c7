package main

import (
	"math"
	"sync"
)

const ringBufLen = 8192

// meter keeps the most recent mono output for the level display.
type meter struct {
	mu       sync.Mutex
	ring     []float32
	writePos int
}

func newMeter() *meter {
	return &meter{ring: make([]float32, ringBufLen)}
}

// Tap is called from the audio thread. Keep it minimal: just copy into ring.
func (m *meter) Tap(samples []float32) {
	m.mu.Lock()
	for i := 0; i+1 < len(samples); i += 2 {
		m.ring[m.writePos] = (samples[i] + samples[i+1]) * 0.5
		m.writePos = (m.writePos + 1) % ringBufLen
	}
	m.mu.Unlock()
}

// Levels returns peak and RMS over the last n mono samples.
func (m *meter) Levels(n int) (peak, rms float64) {
	if n > ringBufLen {
		n = ringBufLen
	}
	if n <= 0 {
		return 0, 0
	}
	m.mu.Lock()
	start := (m.writePos - n + ringBufLen) % ringBufLen
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(m.ring[(start+i)%ringBufLen])
		sum += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	m.mu.Unlock()
	return peak, math.Sqrt(sum / float64(n))
}

// dbfs maps a linear level onto [0, 1] across a 48 dB window.
func dbfs(level float64) float64 {
	if level <= 0 {
		return 0
	}
	db := 20 * math.Log10(level)
	v := (db + 48) / 48
	return math.Max(0, math.Min(1, v))
}
