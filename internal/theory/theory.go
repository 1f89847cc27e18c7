package theory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	PerfectFifth = 7
	Octave       = 12
)

var ErrInvalidScale = errors.New("invalid scale")

var ErrInvalidNote = errors.New("invalid note")

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var flatNames = map[string]int{
	"Db": 1, "Eb": 3, "Fb": 4, "Gb": 6, "Ab": 8, "Bb": 10, "Cb": 11,
}

// Pitch is a pitch class (0 = C) in a given octave. C4 is middle C.
type Pitch struct {
	Class  int
	Octave int
}

// String spells p with sharps. A Class outside 0..11 carries into the octave.
func (p Pitch) String() string {
	n := Transpose(p, 0)
	return noteNames[n.Class] + strconv.Itoa(n.Octave)
}

// MIDI returns the MIDI note number, with C4 = 60.
func (p Pitch) MIDI() int {
	return (p.Octave+1)*Octave + p.Class
}

// FromMIDI is the inverse of Pitch.MIDI.
func FromMIDI(note int) Pitch {
	return Transpose(Pitch{Class: 0, Octave: -1}, note)
}

// Transpose shifts p by any number of semitones. Octaves carry with floor
// division so negative intervals cross octave boundaries correctly.
func Transpose(p Pitch, semitones int) Pitch {
	abs := p.Octave*Octave + p.Class + semitones
	oct := floorDiv(abs, Octave)
	return Pitch{Class: abs - oct*Octave, Octave: oct}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// NoteNames returns the twelve sharp-spelled pitch class names from C.
func NoteNames() []string {
	return append([]string(nil), noteNames[:]...)
}

// ParseNoteName resolves a bare note name ("C", "F#", "Bb") to its pitch class.
func ParseNoteName(name string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", ErrInvalidNote)
	}
	for i, n := range noteNames {
		if strings.EqualFold(n, name) {
			return i, nil
		}
	}
	if len(name) == 2 {
		canonical := strings.ToUpper(name[:1]) + name[1:]
		if pc, ok := flatNames[canonical]; ok {
			return pc, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidNote, name)
}
