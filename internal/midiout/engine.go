// Package midiout plays transport triggers on an external MIDI device.
package midiout

import (
	"errors"
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/patternplay-go/internal/debug"
	"github.com/cbegin/patternplay-go/internal/transport"
)

// DrumChannel is the General MIDI percussion channel (10, zero-based 9).
const DrumChannel = 9

const ccAllNotesOff = 123

var ErrPortNotFound = errors.New("midi output port not found")

// Sender delivers one message to a device. midi.SendTo returns one.
type Sender func(midi.Message) error

type held struct {
	note uint8
}

// Engine is a transport.VoiceEngine that forwards notes to one MIDI channel.
// It renders silence; the device makes the sound.
type Engine struct {
	mu      sync.Mutex
	send    Sender
	channel uint8
	gain    float64
	nextID  int
	notes   map[int]held
	lastErr error
}

func NewEngine(send Sender, channel uint8) *Engine {
	return &Engine{
		send:    send,
		channel: channel & 0x0F,
		gain:    1,
		notes:   make(map[int]held),
	}
}

func (e *Engine) deliver(msg midi.Message) {
	if err := e.send(msg); err != nil {
		e.lastErr = err
		debug.Log("midi", "send %s: %v", msg, err)
	}
}

func (e *Engine) NoteOn(note int, velocity int, pan int, program int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := uint8(clampInt(note, 0, 127))
	vel := clampInt(int(float64(velocity)*e.gain+0.5), 1, 127)
	id := e.nextID
	e.nextID++
	e.notes[id] = held{note: key}
	e.deliver(midi.NoteOn(e.channel, key, uint8(vel)))
	return id
}

func (e *Engine) NoteOff(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.notes[id]
	if !ok {
		return
	}
	delete(e.notes, id)
	e.deliver(midi.NoteOff(e.channel, h.note))
}

// ReleaseAll sends a note-off for every held note and then All Notes Off.
func (e *Engine) ReleaseAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, h := range e.notes {
		e.deliver(midi.NoteOff(e.channel, h.note))
		delete(e.notes, id)
	}
	e.deliver(midi.ControlChange(e.channel, ccAllNotesOff, 0))
}

func (e *Engine) RenderFrame() (float32, float32) { return 0, 0 }

// SetMasterGain scales outgoing note velocities.
func (e *Engine) SetMasterGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	e.mu.Lock()
	e.gain = gain
	e.mu.Unlock()
}

// ActiveVoiceCount reports notes that have been started but not released.
func (e *Engine) ActiveVoiceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.notes)
}

// Err returns the most recent send failure, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// NewVoices routes melody and chords to their own channels and drums to
// DrumChannel, all through send.
func NewVoices(send Sender, melodyCh, chordCh uint8) transport.Voices {
	return transport.Voices{
		Melody: NewEngine(send, melodyCh),
		Chords: NewEngine(send, chordCh),
		Drums:  NewEngine(send, DrumChannel),
	}
}

// OpenPort finds an output port by name and returns a sender for it. A MIDI
// driver must be registered, usually by importing rtmididrv in main.
func OpenPort(name string) (Sender, error) {
	out, err := midi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrPortNotFound, name, err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open midi port %q: %w", name, err)
	}
	return Sender(send), nil
}

// PortNames lists the output ports the registered driver can see.
func PortNames() []string {
	var names []string
	for _, p := range midi.GetOutPorts() {
		names = append(names, p.String())
	}
	return names
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
