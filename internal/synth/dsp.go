package synth

import "math"

func MIDIToFreq(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

// DBToGain converts decibels to a linear amplitude factor.
func DBToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// rate is the per-sample envelope step covering span over sec seconds.
func rate(span, sec, sampleRate float64) float64 {
	if sec <= 0 || sampleRate <= 0 {
		return 1
	}
	return span / (sec * sampleRate)
}

func lowpassAlpha(cutoff, sampleRate float64) float64 {
	if cutoff <= 0 || cutoff >= sampleRate/2 {
		return 0
	}
	rc := 1.0 / (twoPi * cutoff)
	dt := 1.0 / sampleRate
	return dt / (rc + dt)
}

func dcBlock(x float64, prevIn, prevOut *float64) float64 {
	const r = 0.995
	y := x - *prevIn + r**prevOut
	*prevIn = x
	*prevOut = y
	return y
}

// panGains maps pan in [-64, 64] to equal-power channel gains.
func panGains(pan float64) (float64, float64) {
	angle := ((pan + 64.0) / 128.0) * (math.Pi / 2.0)
	return math.Cos(angle), math.Sin(angle)
}

func quantize(v float64, steps int) float64 {
	if steps <= 1 {
		return v
	}
	n := math.Round(v*float64(steps-1)) / float64(steps-1)
	return clamp(n, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// lfsr advances a 16-bit noise register and returns a sample in {-1, 1}.
func lfsr(reg *uint16) float64 {
	bit := (*reg ^ (*reg >> 1)) & 1
	*reg = (*reg >> 1) | (bit << 15)
	if *reg&1 == 1 {
		return 1
	}
	return -1
}
