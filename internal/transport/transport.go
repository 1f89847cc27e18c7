package transport

import (
	"container/heap"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/cbegin/patternplay-go/internal/pattern"
)

const (
	defaultVelocity = 100
	// maxDueRecurrences is how many drum recurrences may start in one frame.
	// Older due recurrences are skipped.
	maxDueRecurrences = 2
)

// Trigger is one note or drum hit resolved to the sample clock.
type Trigger struct {
	Target    pattern.Target
	Note      int
	Time      float64 // seconds on the transport clock
	Frame     int64
	Duration  float64
	Iteration int // drum cell recurrence, -1 for one-shots
}

type Options struct {
	// OnTrigger runs on the audio goroutine for every dispatched trigger while
	// the transport is locked. Keep work brief and never call back into the
	// Transport.
	OnTrigger func(Trigger)
	// OnLoop runs on the audio goroutine when a drum cell recurrence begins.
	OnLoop   func(iteration int)
	Velocity int
}

type noteOff struct {
	frame  int64
	target pattern.Target
	voice  int
	fired  bool
}

// Transport converts relative event offsets into sample-clock times and
// dispatches them while frames are rendered. The clock only advances inside
// Process, so every trigger lands on an exact frame.
type Transport struct {
	mu         sync.Mutex
	sampleRate int
	voices     Voices
	frame      int64
	seq        uint64
	queue      triggerQueue
	noteOffs   []noteOff
	loops      []*Loop
	velocity   int
	onTrigger  func(Trigger)
	onLoop     func(int)
}

func New(sampleRate int, voices Voices, opts Options) *Transport {
	vel := opts.Velocity
	if vel <= 0 {
		vel = defaultVelocity
	}
	return &Transport{
		sampleRate: sampleRate,
		voices:     voices,
		velocity:   vel,
		onTrigger:  opts.OnTrigger,
		onLoop:     opts.OnLoop,
	}
}

func (t *Transport) SampleRate() int { return t.sampleRate }

// Now returns the clock position in seconds.
func (t *Transport) Now() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.frame) / float64(t.sampleRate)
}

func (t *Transport) Frame() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frame
}

func (t *Transport) toFrame(seconds float64) int64 {
	return int64(math.Round(seconds * float64(t.sampleRate)))
}

// Schedule resolves b against anchor and returns the session that owns the
// resulting drum loop. Melody and chord triggers are one-shots and cannot be
// cancelled once scheduled.
func (t *Transport) Schedule(b pattern.Bundle, anchor float64) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scheduleLocked(b, anchor)
}

// ScheduleNow anchors b at the current clock position. Reading the clock and
// scheduling happen under one lock, so no frame is rendered in between.
func (t *Transport) ScheduleNow(b pattern.Bundle) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scheduleLocked(b, float64(t.frame)/float64(t.sampleRate))
}

func (t *Transport) scheduleLocked(b pattern.Bundle, anchor float64) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Anchor:    anchor,
		transport: t,
	}
	for _, list := range [][]pattern.Event{b.Melody, b.Chords} {
		for _, ev := range list {
			at := anchor + ev.Offset
			t.enqueue(Trigger{
				Target:    ev.Target,
				Note:      ev.Note(),
				Time:      at,
				Frame:     t.toFrame(at),
				Duration:  ev.Duration,
				Iteration: -1,
			}, nil)
		}
	}
	if b.Drums != nil && b.Drums.Period > 0 && len(b.Drums.Events) > 0 {
		l := &Loop{
			transport: t,
			anchor:    anchor,
			period:    b.Drums.Period,
			events:    append([]pattern.Event(nil), b.Drums.Events...),
			running:   true,
		}
		l.nextFrame = t.toFrame(l.start(0))
		t.loops = append(t.loops, l)
		s.loop = l
	}
	return s
}

func (t *Transport) enqueue(trig Trigger, owner *Loop) {
	t.seq++
	heap.Push(&t.queue, &scheduled{trig: trig, seq: t.seq, loop: owner})
}

// Stop silences melody and chord voices, halts the session's drum loop and
// releases it. No loop recurrence fires after Stop returns.
func (t *Transport) Stop(s *Session) {
	if s == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for _, target := range []pattern.Target{pattern.TargetMelody, pattern.TargetChord} {
		if e := t.voices.engine(target); e != nil {
			e.ReleaseAll()
		}
		t.forgetNoteOffs(target)
	}
	if s.loop != nil {
		t.stopLoopLocked(s.loop)
		t.disposeLoopLocked(s.loop)
	}
}

// Reset drops every pending trigger, disposes all loops and releases every
// voice. The clock keeps running.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range t.loops {
		l.running = false
		l.disposed = true
	}
	t.loops = nil
	t.queue = nil
	t.noteOffs = t.noteOffs[:0]
	for _, e := range t.voices.all() {
		e.ReleaseAll()
	}
}

// ActiveLoops reports how many drum loops hold resources on this transport.
func (t *Transport) ActiveLoops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.loops)
}

// Pending reports how many triggers are waiting to be dispatched.
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.Len()
}

func (t *Transport) ActiveVoiceCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.voices.ActiveVoiceCount()
}

// Process renders len(dst)/2 interleaved stereo frames, dispatching every
// trigger whose frame is reached.
func (t *Transport) Process(dst []float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	frames := len(dst) / 2
	for f := 0; f < frames; f++ {
		t.advanceLoops()
		t.dispatchDue()
		t.dispatchNoteOffs()
		l, r := t.voices.RenderFrame()
		dst[f*2] = clamp(l)
		dst[f*2+1] = clamp(r)
		t.frame++
	}
	t.compactNoteOffs()
}

// skipOverdue keeps only the newest maxDueRecurrences recurrences that have
// already started on the clock. The skipped ones never sound.
func (t *Transport) skipOverdue(l *Loop) {
	now := float64(t.frame) / float64(t.sampleRate)
	latest := int(math.Floor((now - l.anchor) / l.period))
	if skip := latest - l.iteration - maxDueRecurrences + 1; skip > 0 {
		l.iteration += skip
		l.nextFrame = t.toFrame(l.start(l.iteration))
	}
}

func (t *Transport) advanceLoops() {
	for _, l := range t.loops {
		if l.running && l.nextFrame <= t.frame {
			t.skipOverdue(l)
		}
		for started := 0; l.running && l.nextFrame <= t.frame && started < maxDueRecurrences; started++ {
			k := l.iteration
			base := l.start(k)
			for _, ev := range l.events {
				at := base + ev.Offset
				t.enqueue(Trigger{
					Target:    pattern.TargetDrum,
					Note:      ev.Note(),
					Time:      at,
					Frame:     t.toFrame(at),
					Duration:  ev.Duration,
					Iteration: k,
				}, l)
			}
			l.iteration++
			l.nextFrame = t.toFrame(l.start(l.iteration))
			if t.onLoop != nil {
				t.onLoop(k)
			}
		}
	}
}

func (t *Transport) dispatchDue() {
	for {
		next := t.queue.peek()
		if next == nil || next.trig.Frame > t.frame {
			return
		}
		heap.Pop(&t.queue)
		t.fire(next.trig)
	}
}

func (t *Transport) fire(trig Trigger) {
	e := t.voices.engine(trig.Target)
	if e == nil {
		return
	}
	id := e.NoteOn(trig.Note, t.velocity, 0, 0)
	length := t.toFrame(trig.Duration)
	if length < 1 {
		length = 1
	}
	t.noteOffs = append(t.noteOffs, noteOff{
		frame:  t.frame + length,
		target: trig.Target,
		voice:  id,
	})
	if t.onTrigger != nil {
		t.onTrigger(trig)
	}
}

func (t *Transport) dispatchNoteOffs() {
	for i := range t.noteOffs {
		n := &t.noteOffs[i]
		if n.fired || n.frame > t.frame {
			continue
		}
		n.fired = true
		if e := t.voices.engine(n.target); e != nil {
			e.NoteOff(n.voice)
		}
	}
}

func (t *Transport) forgetNoteOffs(target pattern.Target) {
	for i := range t.noteOffs {
		if t.noteOffs[i].target == target {
			t.noteOffs[i].fired = true
		}
	}
	t.compactNoteOffs()
}

func (t *Transport) compactNoteOffs() {
	if len(t.noteOffs) == 0 {
		return
	}
	kept := t.noteOffs[:0]
	for _, n := range t.noteOffs {
		if !n.fired {
			kept = append(kept, n)
		}
	}
	t.noteOffs = kept
}

func (t *Transport) stopLoopLocked(l *Loop) {
	if !l.running {
		return
	}
	l.running = false
	t.queue.dropLoop(l)
}

func (t *Transport) disposeLoopLocked(l *Loop) {
	if l.disposed {
		return
	}
	l.disposed = true
	for i, other := range t.loops {
		if other == l {
			t.loops = append(t.loops[:i], t.loops[i+1:]...)
			break
		}
	}
}

func clamp(v float32) float32 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
