package synth

import (
	"math"
	"sync/atomic"
)

// General MIDI percussion keys played by Kit.
const (
	NoteKick  = 36
	NoteSnare = 38
	NoteHiHat = 42
)

type drumKind int

const (
	drumKick drumKind = iota
	drumSnare
	drumHiHat
)

type hit struct {
	active   bool
	id       int
	age      int
	kind     drumKind
	phase    float64
	amp      float64
	decay    float64 // per-sample amplitude multiplier
	released bool
	noise    uint16
	hp       float64
	hpPrev   float64
	velocity float64
}

// Kit synthesizes a small drum set: a pitched membrane kick, a noise snare
// and a high-passed metallic hihat. Hits decay on their own; NoteOff only
// shortens the tail.
type Kit struct {
	sampleRate float64
	hits       []hit
	nextID     int
	masterGain uint64
	dcPrevInL  float64
	dcPrevOutL float64
	dcPrevInR  float64
	dcPrevOutR float64
}

func NewKit(sampleRate int, polyphony int) *Kit {
	if polyphony <= 0 {
		polyphony = 8
	}
	k := &Kit{
		sampleRate: float64(sampleRate),
		hits:       make([]hit, polyphony),
		masterGain: math.Float64bits(0.5),
	}
	for i := range k.hits {
		k.hits[i].noise = uint16(0xACE1 + i*97)
	}
	return k
}

func kindForNote(note int) (drumKind, bool) {
	switch note {
	case NoteKick:
		return drumKick, true
	case NoteSnare:
		return drumSnare, true
	case NoteHiHat:
		return drumHiHat, true
	}
	return 0, false
}

// decaySeconds is the time for a hit to fall by 60 dB.
func decaySeconds(kind drumKind) float64 {
	switch kind {
	case drumKick:
		return 0.45
	case drumSnare:
		return 0.22
	default:
		return 0.07
	}
}

func (k *Kit) decayFactor(sec float64) float64 {
	return math.Pow(0.001, 1/(sec*k.sampleRate))
}

// NoteOn starts a hit for a known percussion key and returns its id, or -1
// when the key is not part of the kit.
func (k *Kit) NoteOn(note int, velocity int, pan int, program int) int {
	kind, ok := kindForNote(note)
	if !ok {
		return -1
	}
	slot := k.stealHit()
	id := k.nextID
	k.nextID++
	h := &k.hits[slot]
	noise := h.noise
	if noise == 0 {
		noise = 0xACE1
	}
	*h = hit{
		active:   true,
		id:       id,
		kind:     kind,
		amp:      1,
		decay:    k.decayFactor(decaySeconds(kind)),
		noise:    noise,
		velocity: clamp(float64(velocity)/127.0, 0, 1),
	}
	return id
}

func (k *Kit) NoteOff(id int) {
	if id < 0 {
		return
	}
	for i := range k.hits {
		h := &k.hits[i]
		if h.active && h.id == id && !h.released {
			h.released = true
			h.decay = math.Min(h.decay, k.decayFactor(0.03))
		}
	}
}

func (k *Kit) ReleaseAll() {
	for i := range k.hits {
		if k.hits[i].active {
			k.hits[i].released = true
			k.hits[i].decay = math.Min(k.hits[i].decay, k.decayFactor(0.03))
		}
	}
}

func (k *Kit) RenderFrame() (float32, float32) {
	gain := k.masterGainValue()
	var mono float64
	for i := range k.hits {
		h := &k.hits[i]
		if !h.active {
			continue
		}
		mono += k.renderHit(h) * h.amp * (0.2 + 0.8*h.velocity) * gain
		h.amp *= h.decay
		h.age++
		if h.amp < 0.0005 {
			h.active = false
		}
	}
	l := dcBlock(mono, &k.dcPrevInL, &k.dcPrevOutL)
	r := dcBlock(mono, &k.dcPrevInR, &k.dcPrevOutR)
	return float32(clamp(l, -1, 1)), float32(clamp(r, -1, 1))
}

func (k *Kit) renderHit(h *hit) float64 {
	t := float64(h.age) / k.sampleRate
	switch h.kind {
	case drumKick:
		// Pitch falls from 150 Hz toward 50 Hz over the first 60 ms.
		freq := 50 + 100*math.Exp(-t/0.06)
		h.phase += freq / k.sampleRate
		if h.phase >= 1 {
			h.phase -= 1
		}
		return math.Sin(twoPi * h.phase)
	case drumSnare:
		h.phase += 185 / k.sampleRate
		if h.phase >= 1 {
			h.phase -= 1
		}
		tone := math.Sin(twoPi*h.phase) * math.Exp(-t/0.04)
		return 0.35*tone + 0.65*lfsr(&h.noise)
	default:
		// One-pole high-pass leaves the bright part of the noise.
		n := lfsr(&h.noise)
		h.hp = 0.6 * (h.hp + n - h.hpPrev)
		h.hpPrev = n
		return h.hp
	}
}

func (k *Kit) stealHit() int {
	for i := range k.hits {
		if !k.hits[i].active {
			return i
		}
	}
	oldest := 0
	oldestAge := -1
	for i := range k.hits {
		if k.hits[i].age > oldestAge {
			oldest = i
			oldestAge = k.hits[i].age
		}
	}
	return oldest
}

func (k *Kit) SetMasterGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	atomic.StoreUint64(&k.masterGain, math.Float64bits(gain))
}

func (k *Kit) masterGainValue() float64 {
	return math.Float64frombits(atomic.LoadUint64(&k.masterGain))
}

func (k *Kit) ActiveVoiceCount() int {
	n := 0
	for i := range k.hits {
		if k.hits[i].active {
			n++
		}
	}
	return n
}
