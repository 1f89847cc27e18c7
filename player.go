package patternplay

import (
	"errors"
	"sync"

	"github.com/cbegin/patternplay-go/internal/pattern"
	"github.com/cbegin/patternplay-go/internal/transport"
)

type State int

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "idle"
}

// Controls is what the play and stop buttons should show.
type Controls struct {
	PlayLabel   string
	StopEnabled bool
}

const (
	LabelPlay  = "Play"
	LabelPause = "Pause"
)

type EventKind int

const (
	EventStarted EventKind = iota
	EventStopped
	EventTrigger
	EventLoopCompleted
)

// Event carries playback and trigger events from Watch().
type Event struct {
	Kind      EventKind
	SessionID string
	Trigger   transport.Trigger // EventTrigger only
	Iteration int               // EventLoopCompleted only
}

type PlayerOption func(*playerConfig)

type playerConfig struct {
	eventBuffer int
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{eventBuffer: 8}
}

// WithEventBuffer sets the capacity of channels returned by Watch.
func WithEventBuffer(n int) PlayerOption {
	return func(cfg *playerConfig) {
		if n > 0 {
			cfg.eventBuffer = n
		}
	}
}

// Player is the preview state machine. It holds at most one session; a
// pause is a stop, so the next play starts the preview from the top.
type Player struct {
	mu        sync.Mutex
	engine    *AudioEngine
	state     State
	session   *transport.Session
	params    pattern.Params
	cfg       playerConfig
	eventCh   chan Event
	eventChMu sync.Mutex
}

func NewPlayer(engine *AudioEngine, opts ...PlayerOption) (*Player, error) {
	if engine == nil {
		return nil, errors.New("audio engine is required")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	p := &Player{engine: engine, cfg: cfg}
	engine.observe(p.onTrigger, p.onLoop)
	return p, nil
}

func (p *Player) Engine() *AudioEngine { return p.engine }

// Toggle starts a preview of params when idle and stops it when playing.
// A generation error leaves the player idle.
func (p *Player) Toggle(params pattern.Params) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Playing {
		p.stopLocked()
		return nil
	}
	return p.startLocked(params)
}

// Play replaces whatever is playing with a fresh preview of params.
func (p *Player) Play(params pattern.Params) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Playing {
		p.stopLocked()
	}
	return p.startLocked(params)
}

// Stop ends the current preview. It does nothing when idle.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Idle {
		return
	}
	p.stopLocked()
}

func (p *Player) startLocked(params pattern.Params) error {
	bundle, err := pattern.Generate(params)
	if err != nil {
		return err
	}
	p.session = p.engine.Transport().ScheduleNow(bundle)
	p.params = params
	p.state = Playing
	p.sendEvent(Event{Kind: EventStarted, SessionID: p.session.ID})
	return nil
}

func (p *Player) stopLocked() {
	s := p.session
	p.engine.Transport().Stop(s)
	p.session = nil
	p.state = Idle
	if s != nil {
		p.sendEvent(Event{Kind: EventStopped, SessionID: s.ID})
	}
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) Playing() bool { return p.State() == Playing }

func (p *Player) Controls() Controls {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Playing {
		return Controls{PlayLabel: LabelPause, StopEnabled: true}
	}
	return Controls{PlayLabel: LabelPlay, StopEnabled: false}
}

// Session returns the live session, or nil when idle.
func (p *Player) Session() *transport.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Params returns the snapshot the current or last preview was started with.
func (p *Player) Params() pattern.Params {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params
}

func (p *Player) onTrigger(t transport.Trigger) {
	p.sendEvent(Event{Kind: EventTrigger, Trigger: t})
}

func (p *Player) onLoop(k int) {
	// Recurrence k starting means recurrence k-1 completed.
	if k > 0 {
		p.sendEvent(Event{Kind: EventLoopCompleted, Iteration: k - 1})
	}
}

func (p *Player) sendEvent(ev Event) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

// Watch returns a channel that receives playback events:
//   - EventStarted / EventStopped: a session began or ended
//   - EventTrigger: a note or drum hit was dispatched (audio goroutine)
//   - EventLoopCompleted: a drum cell cycle finished
//
// The channel is buffered; events are dropped rather than block the audio
// goroutine. Only the most recent Watch() channel receives events.
func (p *Player) Watch() <-chan Event {
	ch := make(chan Event, p.cfg.eventBuffer)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

// SetMasterVolume sets runtime volume scalar. 1.0 is default.
func (p *Player) SetMasterVolume(volume float64) {
	p.engine.SetVolume(volume)
}

func (p *Player) MasterVolume() float64 {
	return p.engine.Volume()
}
