package patternplay

import (
	"errors"
	"sync"
	"sync/atomic"

	intaudio "github.com/cbegin/patternplay-go/internal/audio"
	"github.com/cbegin/patternplay-go/internal/debug"
	intsynth "github.com/cbegin/patternplay-go/internal/synth"
	"github.com/cbegin/patternplay-go/internal/transport"
)

// ChordBusDB is the level of the chord pool relative to the melody.
const ChordBusDB = -8.0

type EngineOption func(*engineConfig)

type engineConfig struct {
	voices    *transport.Voices
	sampleTap func([]float32)
}

// WithVoices replaces the built-in synth pools, e.g. with a MIDI backend.
func WithVoices(v transport.Voices) EngineOption {
	return func(cfg *engineConfig) {
		cfg.voices = &v
	}
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) EngineOption {
	return func(cfg *engineConfig) {
		cfg.sampleTap = tap
	}
}

type observer struct {
	onTrigger func(transport.Trigger)
	onLoop    func(int)
}

// AudioEngine owns the voice pools, the transport that plays into them and,
// once opened, the device stream pulling frames from it. It is created
// explicitly and handed to whatever plays previews.
type AudioEngine struct {
	mu         sync.Mutex
	sampleRate int
	voices     transport.Voices
	baseGains  [3]float64
	volume     float64
	transport  *transport.Transport
	sampleTap  func([]float32)
	context    *intaudio.Context
	out        *intaudio.Player
	observer   atomic.Pointer[observer]
}

func NewAudioEngine(sampleRate int, opts ...EngineOption) (*AudioEngine, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	var cfg engineConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	e := &AudioEngine{
		sampleRate: sampleRate,
		volume:     1,
		sampleTap:  cfg.sampleTap,
	}
	chordBus := intsynth.DBToGain(ChordBusDB)
	if cfg.voices != nil {
		e.voices = *cfg.voices
		e.baseGains = [3]float64{1, chordBus, 1}
	} else {
		lead, pad := intsynth.LeadParams(), intsynth.PadParams()
		e.voices = transport.Voices{
			Melody: intsynth.NewPoly(sampleRate, lead),
			Chords: intsynth.NewPoly(sampleRate, pad),
			Drums:  intsynth.NewKit(sampleRate, 8),
		}
		e.baseGains = [3]float64{lead.MasterGain, pad.MasterGain * chordBus, 0.5}
	}
	e.applyGains()
	e.transport = transport.New(sampleRate, e.voices, transport.Options{
		OnTrigger: e.dispatchTrigger,
		OnLoop:    e.dispatchLoop,
	})
	return e, nil
}

func (e *AudioEngine) applyGains() {
	for i, v := range []transport.VoiceEngine{e.voices.Melody, e.voices.Chords, e.voices.Drums} {
		if v != nil {
			v.SetMasterGain(e.baseGains[i] * e.volume)
		}
	}
}

func (e *AudioEngine) dispatchTrigger(t transport.Trigger) {
	if o := e.observer.Load(); o != nil && o.onTrigger != nil {
		o.onTrigger(t)
	}
}

func (e *AudioEngine) dispatchLoop(k int) {
	if o := e.observer.Load(); o != nil && o.onLoop != nil {
		o.onLoop(k)
	}
}

// observe routes transport callbacks to the given functions. They run on
// the audio goroutine with the transport locked.
func (e *AudioEngine) observe(onTrigger func(transport.Trigger), onLoop func(int)) {
	e.observer.Store(&observer{onTrigger: onTrigger, onLoop: onLoop})
}

func (e *AudioEngine) SampleRate() int { return e.sampleRate }

func (e *AudioEngine) Transport() *transport.Transport { return e.transport }

// Now is the engine clock in seconds: frames rendered so far.
func (e *AudioEngine) Now() float64 { return e.transport.Now() }

// Process renders interleaved stereo frames. The device stream calls it once
// opened; headless callers drive the clock with it directly.
func (e *AudioEngine) Process(dst []float32) {
	e.transport.Process(dst)
	if e.sampleTap != nil {
		e.sampleTap(dst)
	}
	if debug.Enabled() {
		debug.LogEvery(500, "audio", "buffer frames=%d clock=%.2fs", len(dst)/2, e.transport.Now())
	}
}

// Open starts the device stream. It is a no-op when already open.
func (e *AudioEngine) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.out != nil {
		return nil
	}
	if e.context == nil {
		e.context = intaudio.NewContext(e.sampleRate)
	}
	out, err := e.context.NewPlayer(e)
	if err != nil {
		return err
	}
	e.out = out
	e.out.Play()
	return nil
}

// Close stops the device stream and silences everything still scheduled.
func (e *AudioEngine) Close() error {
	e.mu.Lock()
	out := e.out
	e.out = nil
	e.mu.Unlock()
	e.transport.Reset()
	if out == nil {
		return nil
	}
	return out.Close()
}

// SetVolume scales every pool. 1.0 is the default mix.
func (e *AudioEngine) SetVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = volume
	e.applyGains()
}

func (e *AudioEngine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}
