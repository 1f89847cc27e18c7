package transport

import "github.com/cbegin/patternplay-go/internal/pattern"

type VoiceEngine interface {
	// NoteOn starts a voice and returns its id for NoteOff.
	NoteOn(note int, velocity int, pan int, program int) int
	NoteOff(id int)
	// ReleaseAll moves every sounding voice into its release stage.
	ReleaseAll()
	RenderFrame() (float32, float32)
	SetMasterGain(gain float64)
	// ActiveVoiceCount returns the number of voices still sounding, release tails included.
	ActiveVoiceCount() int
}

// Voices are the three voice pools a transport plays into. They are shared by
// every session scheduled on the transport.
type Voices struct {
	Melody VoiceEngine
	Chords VoiceEngine
	Drums  VoiceEngine
}

func (v Voices) engine(target pattern.Target) VoiceEngine {
	switch target {
	case pattern.TargetMelody:
		return v.Melody
	case pattern.TargetChord:
		return v.Chords
	case pattern.TargetDrum:
		return v.Drums
	}
	return nil
}

func (v Voices) all() []VoiceEngine {
	out := make([]VoiceEngine, 0, 3)
	for _, e := range []VoiceEngine{v.Melody, v.Chords, v.Drums} {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// RenderFrame mixes one frame from every pool.
func (v Voices) RenderFrame() (float32, float32) {
	var l, r float32
	for _, e := range [...]VoiceEngine{v.Melody, v.Chords, v.Drums} {
		if e == nil {
			continue
		}
		el, er := e.RenderFrame()
		l += el
		r += er
	}
	return l, r
}

func (v Voices) ActiveVoiceCount() int {
	n := 0
	for _, e := range v.all() {
		n += e.ActiveVoiceCount()
	}
	return n
}
