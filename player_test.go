package patternplay

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cbegin/patternplay-go/internal/debug"
	"github.com/cbegin/patternplay-go/internal/pattern"
	"github.com/cbegin/patternplay-go/internal/theory"
	"github.com/cbegin/patternplay-go/internal/transport"
)

type countingEngine struct {
	noteOns     int
	releaseAlls int
	gain        float64
}

func (e *countingEngine) NoteOn(note int, velocity int, pan int, program int) int {
	e.noteOns++
	return e.noteOns
}
func (e *countingEngine) NoteOff(id int) {}
func (e *countingEngine) ReleaseAll() { e.releaseAlls++ }
func (e *countingEngine) RenderFrame() (float32, float32) { return 0, 0 }
func (e *countingEngine) SetMasterGain(gain float64) { e.gain = gain }
func (e *countingEngine) ActiveVoiceCount() int { return 0 }

func newTestPlayer(t *testing.T) (*Player, *AudioEngine, transport.Voices) {
	t.Helper()
	voices := transport.Voices{Melody: &countingEngine{}, Chords: &countingEngine{}, Drums: &countingEngine{}}
	engine, err := NewAudioEngine(8000, WithVoices(voices))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	pl, err := NewPlayer(engine)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	return pl, engine, voices
}

func previewParams() pattern.Params {
	return pattern.Params{Key: "C", Scale: theory.Major, Tempo: 120, Octave: 4, EnableChords: true, EnableDrums: true}
}

func render(e *AudioEngine, seconds float64) {
	buf := make([]float32, int(seconds*float64(e.SampleRate()))*2)
	e.Process(buf)
}

func TestToggleStartsAndStops(t *testing.T) {
	pl, engine, _ := newTestPlayer(t)
	if pl.State() != Idle || pl.Controls() != (Controls{PlayLabel: "Play"}) {
		t.Fatalf("fresh player state=%v controls=%+v", pl.State(), pl.Controls())
	}
	if err := pl.Toggle(previewParams()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !pl.Playing() || pl.Session() == nil {
		t.Fatalf("expected playing with a session")
	}
	if got := pl.Controls(); got != (Controls{PlayLabel: "Pause", StopEnabled: true}) {
		t.Fatalf("controls while playing = %+v", got)
	}
	render(engine, 1)
	if err := pl.Toggle(previewParams()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if pl.State() != Idle || pl.Session() != nil {
		t.Fatalf("pause should stop")
	}
	if got := engine.Transport().ActiveLoops(); got != 0 {
		t.Fatalf("loops after pause = %d", got)
	}
}

func TestToggleToggleStopLeavesNoLoops(t *testing.T) {
	pl, engine, _ := newTestPlayer(t)
	for i := 0; i < 5; i++ {
		if err := pl.Toggle(previewParams()); err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
		render(engine, 0.3)
	}
	pl.Stop()
	if got := engine.Transport().ActiveLoops(); got != 0 {
		t.Fatalf("leaked loops = %d", got)
	}
	if pl.State() != Idle {
		t.Fatalf("state = %v", pl.State())
	}
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	pl, _, voices := newTestPlayer(t)
	pl.Stop()
	if voices.Melody.(*countingEngine).releaseAlls != 0 {
		t.Fatalf("idle stop touched voices")
	}
	if pl.Controls().StopEnabled {
		t.Fatalf("stop should stay disabled")
	}
}

func TestStopReleasesVoices(t *testing.T) {
	pl, engine, voices := newTestPlayer(t)
	if err := pl.Toggle(previewParams()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	render(engine, 0.5)
	pl.Stop()
	if voices.Melody.(*countingEngine).releaseAlls != 1 || voices.Chords.(*countingEngine).releaseAlls != 1 {
		t.Fatalf("stop should release melody and chords")
	}
	hits := voices.Drums.(*countingEngine).noteOns
	render(engine, 2)
	if got := voices.Drums.(*countingEngine).noteOns; got != hits {
		t.Fatalf("drums kept playing after stop: %d -> %d", hits, got)
	}
}

func TestInvalidParamsLeaveIdle(t *testing.T) {
	pl, engine, _ := newTestPlayer(t)
	bad := previewParams()
	bad.Scale = "dorian"
	if err := pl.Toggle(bad); !errors.Is(err, theory.ErrInvalidScale) {
		t.Fatalf("err = %v, want ErrInvalidScale", err)
	}
	bad = previewParams()
	bad.Tempo = 0
	if err := pl.Toggle(bad); !errors.Is(err, pattern.ErrInvalidTempo) {
		t.Fatalf("err = %v, want ErrInvalidTempo", err)
	}
	if pl.State() != Idle || engine.Transport().Pending() != 0 || engine.Transport().ActiveLoops() != 0 {
		t.Fatalf("failed start left state behind")
	}
}

func TestPlayReplacesSession(t *testing.T) {
	pl, engine, _ := newTestPlayer(t)
	if err := pl.Play(previewParams()); err != nil {
		t.Fatalf("play: %v", err)
	}
	first := pl.Session()
	render(engine, 0.25)
	next := previewParams()
	next.Key = "A"
	next.Scale = theory.Minor
	if err := pl.Play(next); err != nil {
		t.Fatalf("play: %v", err)
	}
	if pl.Session() == first || !first.Stopped() {
		t.Fatalf("first session should be stopped and replaced")
	}
	if got := engine.Transport().ActiveLoops(); got != 1 {
		t.Fatalf("active loops = %d, want 1", got)
	}
	if pl.Params().Key != "A" {
		t.Fatalf("params snapshot = %+v", pl.Params())
	}
	if pl.Session().Anchor != 0.25 {
		t.Fatalf("anchor = %v, want engine clock 0.25", pl.Session().Anchor)
	}
}

func TestWatchReportsLifecycle(t *testing.T) {
	pl, engine, _ := newTestPlayer(t)
	events := pl.Watch()
	if err := pl.Toggle(previewParams()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if ev := <-events; ev.Kind != EventStarted || ev.SessionID == "" {
		t.Fatalf("first event = %+v", ev)
	}
	render(engine, 0.001)
	ev := <-events
	if ev.Kind != EventTrigger {
		t.Fatalf("expected trigger, got %+v", ev)
	}
	// Drain so later events are not dropped.
	for len(events) > 0 {
		<-events
	}
	pl.Stop()
	if ev := <-events; ev.Kind != EventStopped {
		t.Fatalf("expected stop event, got %+v", ev)
	}
}

func TestLoopCompletedEvents(t *testing.T) {
	pl, engine, _ := newTestPlayer(t)
	if err := pl.Toggle(previewParams()); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	events := pl.Watch()
	// Consume on the fly so the small buffer never drops loop events.
	completed := 0
	for i := 0; i < 30; i++ {
		render(engine, 0.1)
		for len(events) > 0 {
			if ev := <-events; ev.Kind == EventLoopCompleted {
				completed++
			}
		}
	}
	pl.Stop()
	// Cycles start at 0s, 1s and 2s; each later start completes the one before.
	if completed != 2 {
		t.Fatalf("loop completions = %d, want 2", completed)
	}
}

func TestPlayerMasterVolumeRuntimeAPI(t *testing.T) {
	pl, _, voices := newTestPlayer(t)
	if got := pl.MasterVolume(); got != 1 {
		t.Fatalf("default master volume = %v, want 1", got)
	}
	pl.SetMasterVolume(0.5)
	if got := pl.MasterVolume(); got != 0.5 {
		t.Fatalf("master volume = %v, want 0.5", got)
	}
	if g := voices.Melody.(*countingEngine).gain; g != 0.5 {
		t.Fatalf("melody gain = %v", g)
	}
	if g := voices.Chords.(*countingEngine).gain; g >= 0.5*0.4 || g <= 0.5*0.39 {
		t.Fatalf("chord bus gain = %v, want about -8 dB below melody", g)
	}
	pl.SetMasterVolume(-2)
	if got := pl.MasterVolume(); got != 0 {
		t.Fatalf("master volume should clamp to 0, got %v", got)
	}
}

func TestNewPlayerRequiresEngine(t *testing.T) {
	if _, err := NewPlayer(nil); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewAudioEngine(0); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
}

func TestProcessTracesBuffersWhenDebugging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	if err := debug.Enable(path); err != nil {
		t.Fatalf("enable: %v", err)
	}
	e, err := NewAudioEngine(8000)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]float32, 2*64)
	for i := 0; i < 1000; i++ {
		e.Process(buf)
	}
	debug.Disable()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if got := strings.Count(string(data), "buffer frames=64"); got < 1 || got > 2 {
		t.Fatalf("traced %d buffers, want 1 or 2", got)
	}
}
