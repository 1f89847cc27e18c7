package pattern

import (
	"errors"
	"fmt"

	"github.com/cbegin/patternplay-go/internal/theory"
)

// MaxTempo bounds Params.Tempo; faster cells would start more than one drum
// period per audio buffer.
const MaxTempo = 1000

var (
	ErrInvalidTempo = errors.New("invalid tempo")
	ErrInvalidKey   = errors.New("invalid key")
)

// Params is the snapshot of user choices a preview is generated from.
// It is a plain value: copies taken at play start are unaffected by later edits.
type Params struct {
	Key          string
	Scale        theory.Scale
	Tempo        int
	Octave       int
	EnableChords bool
	EnableDrums  bool
}

func DefaultParams() Params {
	return Params{
		Key:          "C",
		Scale:        theory.Major,
		Tempo:        120,
		Octave:       4,
		EnableChords: true,
		EnableDrums:  true,
	}
}

func (p Params) Validate() error {
	if err := checkTempo(p.Tempo); err != nil {
		return err
	}
	if _, err := theory.ParseNoteName(p.Key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if _, err := theory.Third(p.Scale); err != nil {
		return err
	}
	return nil
}

func checkTempo(tempo int) error {
	if tempo <= 0 || tempo > MaxTempo {
		return fmt.Errorf("%w: %d bpm", ErrInvalidTempo, tempo)
	}
	return nil
}

// Beat is the duration of one beat in seconds.
func (p Params) Beat() float64 {
	return 60 / float64(p.Tempo)
}

type Target int

const (
	TargetMelody Target = iota
	TargetChord
	TargetDrum
)

func (t Target) String() string {
	switch t {
	case TargetMelody:
		return "melody"
	case TargetChord:
		return "chord"
	case TargetDrum:
		return "drum"
	}
	return fmt.Sprintf("target(%d)", int(t))
}

type DrumVoice int

const (
	Kick DrumVoice = iota
	Snare
	HiHat
)

// GM percussion notes for each drum voice.
var drumNotes = [...]int{
	Kick:  36,
	Snare: 38,
	HiHat: 42,
}

func (v DrumVoice) Note() int {
	return drumNotes[v]
}

func (v DrumVoice) String() string {
	switch v {
	case Kick:
		return "kick"
	case Snare:
		return "snare"
	case HiHat:
		return "hihat"
	}
	return fmt.Sprintf("drum(%d)", int(v))
}

// Event is one note or drum hit relative to the start of its list.
type Event struct {
	Target   Target
	Pitch    theory.Pitch // melody and chord events
	Voice    DrumVoice    // drum events
	Offset   float64      // seconds
	Duration float64      // seconds
}

// Note returns the MIDI note the event sounds.
func (e Event) Note() int {
	if e.Target == TargetDrum {
		return e.Voice.Note()
	}
	return e.Pitch.MIDI()
}

type DrumCell struct {
	Events []Event
	Period float64
}

type Bundle struct {
	Melody []Event
	Chords []Event
	Drums  *DrumCell // nil when drums are disabled
	Beat   float64
}

// Length is the duration of the melodic motif in seconds.
func (b Bundle) Length() float64 {
	return motifBeats * b.Beat
}
