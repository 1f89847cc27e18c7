package pattern

import (
	"fmt"

	"github.com/cbegin/patternplay-go/internal/theory"
)

const (
	motifBeats     = 4
	drumCellBeats  = 2
	kickLength     = 0.5   // eighth note
	snareLength    = 0.25  // sixteenth
	hihatLength    = 0.125 // thirty-second
	chordOctaveGap = -theory.Octave
)

// Generate derives the preview event lists for p. The result depends only on p.
func Generate(p Params) (Bundle, error) {
	if err := checkTempo(p.Tempo); err != nil {
		return Bundle{}, err
	}
	pc, err := theory.ParseNoteName(p.Key)
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	third, err := theory.Third(p.Scale)
	if err != nil {
		return Bundle{}, err
	}
	base := theory.Pitch{Class: pc, Octave: p.Octave}
	beat := p.Beat()

	b := Bundle{Beat: beat}
	b.Melody = melody(base, third, p.Tempo)
	if p.EnableChords {
		chords, err := chordEvents(base, p.Scale, beat)
		if err != nil {
			return Bundle{}, err
		}
		b.Chords = chords
	}
	if p.EnableDrums {
		b.Drums = drumCell(beat)
	}
	return b, nil
}

// Offsets are i*60/tempo, never accumulated.
func melody(base theory.Pitch, third int, tempo int) []Event {
	steps := [motifBeats]int{0, third, theory.PerfectFifth, 0}
	out := make([]Event, 0, len(steps))
	for i, iv := range steps {
		out = append(out, Event{
			Target:   TargetMelody,
			Pitch:    theory.Transpose(base, iv),
			Offset:   float64(i*60) / float64(tempo),
			Duration: 60 / float64(tempo),
		})
	}
	return out
}

func chordEvents(base theory.Pitch, scale theory.Scale, beat float64) ([]Event, error) {
	tones, err := theory.Triad(theory.Transpose(base, chordOctaveGap), scale)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(tones))
	for _, tone := range tones {
		out = append(out, Event{
			Target:   TargetChord,
			Pitch:    tone,
			Offset:   0,
			Duration: motifBeats * beat,
		})
	}
	return out, nil
}

func drumCell(beat float64) *DrumCell {
	return &DrumCell{
		Period: drumCellBeats * beat,
		Events: []Event{
			{Target: TargetDrum, Voice: Kick, Offset: 0, Duration: kickLength * beat},
			{Target: TargetDrum, Voice: HiHat, Offset: beat / 2, Duration: hihatLength * beat},
			{Target: TargetDrum, Voice: Snare, Offset: beat, Duration: snareLength * beat},
			{Target: TargetDrum, Voice: HiHat, Offset: beat * 1.5, Duration: hihatLength * beat},
		},
	}
}
