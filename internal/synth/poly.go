package synth

import (
	"math"
	"sync/atomic"
)

const twoPi = math.Pi * 2

type Wave int

const (
	WavePulse Wave = iota
	WaveTriangle
	WaveSquare
)

// Params shapes a Poly voice pool.
type Params struct {
	Voices      int
	Wave        Wave
	MasterGain  float64
	AttackSec   float64
	DecaySec    float64
	SustainLvl  float64
	ReleaseSec  float64
	StepLevels  int
	PulseDuty   float64
	VelocityAmp float64
	LPFCutoff   float64 // lowpass filter cutoff in Hz (0 = disabled)
}

// LeadParams is the melody voice: a narrow pulse with a short pluck.
func LeadParams() Params {
	return Params{
		Voices:      8,
		Wave:        WavePulse,
		MasterGain:  0.28,
		AttackSec:   0.005,
		DecaySec:    0.15,
		SustainLvl:  0.65,
		ReleaseSec:  0.20,
		StepLevels:  16,
		PulseDuty:   0.25,
		VelocityAmp: 0.85,
		LPFCutoff:   12000,
	}
}

// PadParams is the chord voice: a soft triangle with slow edges.
func PadParams() Params {
	return Params{
		Voices:      6,
		Wave:        WaveTriangle,
		MasterGain:  0.28,
		AttackSec:   0.04,
		DecaySec:    0.3,
		SustainLvl:  0.8,
		ReleaseSec:  0.35,
		StepLevels:  32,
		PulseDuty:   0.5,
		VelocityAmp: 0.85,
		LPFCutoff:   6000,
	}
}

type envState int

const (
	envAttack envState = iota
	envDecay
	envSustain
	envRelease
	envOff
)

type voice struct {
	active   bool
	id       int
	age      int
	freq     float64
	phase    float64
	velocity float64
	env      float64
	envState envState
	pan      float64
}

// Poly is a fixed-size polyphonic oscillator pool with per-voice ADSR.
// It is not safe for concurrent use apart from SetMasterGain.
type Poly struct {
	sampleRate float64
	params     Params
	voices     []voice
	nextID     int
	masterGain uint64
	dcPrevInL  float64
	dcPrevOutL float64
	dcPrevInR  float64
	dcPrevOutR float64
	lpfL       float64
	lpfR       float64
	lpfAlpha   float64
}

func NewPoly(sampleRate int, params Params) *Poly {
	if params.Voices <= 0 {
		params.Voices = 8
	}
	if params.StepLevels <= 1 {
		params.StepLevels = 16
	}
	if params.PulseDuty <= 0 || params.PulseDuty >= 1 {
		params.PulseDuty = 0.5
	}
	p := &Poly{
		sampleRate: float64(sampleRate),
		params:     params,
		voices:     make([]voice, params.Voices),
		masterGain: math.Float64bits(params.MasterGain),
	}
	p.lpfAlpha = lowpassAlpha(params.LPFCutoff, p.sampleRate)
	return p
}

func (p *Poly) NoteOn(note int, velocity int, pan int, program int) int {
	slot := p.stealVoice()
	id := p.nextID
	p.nextID++
	v := &p.voices[slot]
	*v = voice{
		active:   true,
		id:       id,
		freq:     MIDIToFreq(note),
		velocity: clamp(float64(velocity)/127.0, 0, 1),
		envState: envAttack,
		pan:      clamp(float64(pan), -64, 64),
	}
	return id
}

func (p *Poly) NoteOff(id int) {
	for i := range p.voices {
		v := &p.voices[i]
		if v.active && v.id == id && v.envState != envRelease {
			v.envState = envRelease
		}
	}
}

// ReleaseAll moves every sounding voice into its release stage.
func (p *Poly) ReleaseAll() {
	for i := range p.voices {
		v := &p.voices[i]
		if v.active {
			v.envState = envRelease
		}
	}
}

func (p *Poly) RenderFrame() (float32, float32) {
	gain := p.masterGainValue()
	var l, r float64
	for i := range p.voices {
		v := &p.voices[i]
		if !v.active {
			continue
		}
		v.age++
		env := p.advanceEnv(v)
		if !v.active {
			continue
		}
		sample := p.renderWave(v)
		level := quantize(env*(0.15+v.velocity*p.params.VelocityAmp), p.params.StepLevels)
		sig := sample * level * gain
		pl, pr := panGains(v.pan)
		l += sig * pl
		r += sig * pr
	}
	l = dcBlock(l, &p.dcPrevInL, &p.dcPrevOutL)
	r = dcBlock(r, &p.dcPrevInR, &p.dcPrevOutR)
	if p.lpfAlpha > 0 {
		p.lpfL += p.lpfAlpha * (l - p.lpfL)
		p.lpfR += p.lpfAlpha * (r - p.lpfR)
		l, r = p.lpfL, p.lpfR
	}
	return float32(clamp(l, -1, 1)), float32(clamp(r, -1, 1))
}

func (p *Poly) renderWave(v *voice) float64 {
	dt := v.freq / p.sampleRate
	v.phase += dt
	if v.phase >= 1 {
		v.phase -= 1
	}
	switch p.params.Wave {
	case WaveTriangle:
		return 2*math.Abs(2*v.phase-1) - 1
	case WaveSquare:
		return pulse(v.phase, dt, 0.5)
	default:
		return pulse(v.phase, dt, p.params.PulseDuty)
	}
}

func pulse(phase, dt, duty float64) float64 {
	out := -1.0
	if phase < duty {
		out = 1
	}
	out += polyBLEP(phase, dt)
	out -= polyBLEP(math.Mod(phase-duty+1, 1), dt)
	return out
}

// polyBLEP reduces aliasing at waveform discontinuities.
// t is the phase position [0,1), dt is the phase increment per sample.
func polyBLEP(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

func (p *Poly) stealVoice() int {
	for i := range p.voices {
		if !p.voices[i].active {
			return i
		}
	}
	// Steal the oldest releasing voice, or failing that the oldest active voice.
	oldestRelease := -1
	oldestReleaseAge := -1
	oldestActive := 0
	oldestActiveAge := -1
	for i := range p.voices {
		v := &p.voices[i]
		if v.envState == envRelease && v.age > oldestReleaseAge {
			oldestRelease = i
			oldestReleaseAge = v.age
		}
		if v.age > oldestActiveAge {
			oldestActive = i
			oldestActiveAge = v.age
		}
	}
	if oldestRelease >= 0 {
		return oldestRelease
	}
	return oldestActive
}

func (p *Poly) advanceEnv(v *voice) float64 {
	switch v.envState {
	case envAttack:
		v.env += rate(1, p.params.AttackSec, p.sampleRate)
		if v.env >= 1 {
			v.env = 1
			v.envState = envDecay
		}
	case envDecay:
		v.env -= rate(1-p.params.SustainLvl, p.params.DecaySec, p.sampleRate)
		if v.env <= p.params.SustainLvl {
			v.env = p.params.SustainLvl
			v.envState = envSustain
		}
	case envSustain:
	case envRelease:
		// Release from wherever the envelope is so early note-offs stay short.
		from := math.Max(p.params.SustainLvl, 0.05)
		v.env -= rate(from, p.params.ReleaseSec, p.sampleRate)
		if v.env <= 0.0001 {
			v.env = 0
			v.envState = envOff
			v.active = false
		}
	case envOff:
		v.active = false
		v.env = 0
	}
	return v.env
}

func (p *Poly) SetMasterGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	atomic.StoreUint64(&p.masterGain, math.Float64bits(gain))
}

func (p *Poly) masterGainValue() float64 {
	return math.Float64frombits(atomic.LoadUint64(&p.masterGain))
}

func (p *Poly) ActiveVoiceCount() int {
	n := 0
	for i := range p.voices {
		if p.voices[i].active {
			n++
		}
	}
	return n
}
