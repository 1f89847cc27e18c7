package transport

import "github.com/cbegin/patternplay-go/internal/pattern"

// Session is the live state of one scheduled preview.
type Session struct {
	ID        string
	Anchor    float64
	loop      *Loop
	transport *Transport
	stopped   bool
}

// Loop returns the session's drum loop, or nil when drums were disabled.
func (s *Session) Loop() *Loop {
	return s.loop
}

func (s *Session) Stopped() bool {
	s.transport.mu.Lock()
	defer s.transport.mu.Unlock()
	return s.stopped
}

// Loop is a running periodic drum cell. Recurrence k starts at
// anchor + k*period; start times are computed from k so they never drift.
type Loop struct {
	transport *Transport
	anchor    float64
	period    float64
	events    []pattern.Event
	iteration int
	nextFrame int64
	running   bool
	disposed  bool
}

func (l *Loop) start(k int) float64 {
	return l.anchor + float64(k)*l.period
}

// Stop halts further recurrences and drops hits not yet dispatched.
func (l *Loop) Stop() {
	l.transport.mu.Lock()
	defer l.transport.mu.Unlock()
	l.transport.stopLoopLocked(l)
}

// Dispose stops the loop if needed and releases it from the transport.
func (l *Loop) Dispose() {
	l.transport.mu.Lock()
	defer l.transport.mu.Unlock()
	l.transport.stopLoopLocked(l)
	l.transport.disposeLoopLocked(l)
}

func (l *Loop) Running() bool {
	l.transport.mu.Lock()
	defer l.transport.mu.Unlock()
	return l.running
}

func (l *Loop) Disposed() bool {
	l.transport.mu.Lock()
	defer l.transport.mu.Unlock()
	return l.disposed
}

// Iterations reports how many recurrences have started.
func (l *Loop) Iterations() int {
	l.transport.mu.Lock()
	defer l.transport.mu.Unlock()
	return l.iteration
}
