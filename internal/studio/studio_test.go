package studio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/patternplay-go"
	"github.com/cbegin/patternplay-go/internal/pattern"
	"github.com/cbegin/patternplay-go/internal/remote"
	"github.com/cbegin/patternplay-go/internal/theory"
)

var (
	_ Generator = (*remote.Client)(nil)
	_ Preview   = (*patternplay.Player)(nil)
)

type fakeGenerator struct {
	data  []byte
	err   error
	calls []remote.Request
	// during runs while the request is in flight.
	during func()
}

func (g *fakeGenerator) Generate(ctx context.Context, req remote.Request) ([]byte, error) {
	g.calls = append(g.calls, req)
	if g.during != nil {
		g.during()
	}
	return g.data, g.err
}

type fakePreview struct {
	playing bool
	last    pattern.Params
	err     error
}

func (p *fakePreview) Toggle(params pattern.Params) error {
	if p.err != nil {
		return p.err
	}
	if p.playing {
		p.playing = false
		return nil
	}
	p.last = params
	p.playing = true
	return nil
}

func (p *fakePreview) Stop() { p.playing = false }

func (p *fakePreview) Controls() patternplay.Controls {
	if p.playing {
		return patternplay.Controls{PlayLabel: patternplay.LabelPause, StopEnabled: true}
	}
	return patternplay.Controls{PlayLabel: patternplay.LabelPlay}
}

type manualTimer struct {
	delay   time.Duration
	pending func()
	stopped int
}

func (m *manualTimer) after(d time.Duration, f func()) func() bool {
	m.delay = d
	m.pending = f
	return func() bool {
		m.stopped++
		m.pending = nil
		return true
	}
}

func (m *manualTimer) fire() {
	f := m.pending
	m.pending = nil
	if f != nil {
		f()
	}
}

func newTestStudio(gen *fakeGenerator, preview *fakePreview, timer *manualTimer, opts ...Option) *Studio {
	opts = append([]Option{WithAfterFunc(timer.after)}, opts...)
	return New(gen, preview, opts...)
}

func TestInitialControls(t *testing.T) {
	s := newTestStudio(&fakeGenerator{}, &fakePreview{}, &manualTimer{})
	assert.Equal(t, Controls{
		GenerateEnabled: true,
		PlayEnabled:     true,
		PlayLabel:       "Play",
	}, s.Controls())
}

func TestGenerateSuccessFlow(t *testing.T) {
	timer := &manualTimer{}
	var inFlight Controls
	gen := &fakeGenerator{data: []byte("MThd")}
	s := newTestStudio(gen, &fakePreview{}, timer)
	gen.during = func() { inFlight = s.Controls() }

	form := DefaultForm()
	form.Genre = "ambient"
	require.NoError(t, s.Generate(context.Background(), form))

	assert.Equal(t, Controls{PlayLabel: "Play", Progress: ProgressInFlight}, inFlight)
	assert.Equal(t, Controls{
		GenerateEnabled: true,
		PlayEnabled:     true,
		DownloadEnabled: true,
		PlayLabel:       "Play",
		Progress:        ProgressDone,
	}, s.Controls())
	require.Len(t, gen.calls, 1)
	assert.Equal(t, "ambient", gen.calls[0].Genre)
	assert.Equal(t, theory.Major, gen.calls[0].Params.Scale)

	assert.Equal(t, DefaultProgressResetDelay, timer.delay)
	timer.fire()
	assert.Equal(t, ProgressIdle, s.Controls().Progress)
}

func TestProgressResetDelayOption(t *testing.T) {
	timer := &manualTimer{}
	s := newTestStudio(&fakeGenerator{data: []byte("MThd")}, &fakePreview{}, timer,
		WithProgressResetDelay(250*time.Millisecond))
	require.NoError(t, s.Generate(context.Background(), DefaultForm()))
	assert.Equal(t, 250*time.Millisecond, timer.delay)
	assert.Equal(t, ProgressDone, s.Controls().Progress)
}

func TestFailedGenerationLeavesPlayAndDownloadDisabled(t *testing.T) {
	timer := &manualTimer{}
	boom := errors.New("status 500")
	gen := &fakeGenerator{err: boom}
	var reported []error
	s := newTestStudio(gen, &fakePreview{}, timer, WithErrorReporter(func(err error) {
		reported = append(reported, err)
	}))

	err := s.Generate(context.Background(), DefaultForm())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []error{boom}, reported)

	c := s.Controls()
	assert.True(t, c.GenerateEnabled)
	assert.False(t, c.PlayEnabled)
	assert.False(t, c.DownloadEnabled)

	timer.fire()
	assert.Equal(t, ProgressIdle, s.Controls().Progress)

	assert.ErrorIs(t, s.TogglePlay(DefaultForm()), ErrNoArtifactAvailable)
	_, err = s.Download(t.TempDir())
	assert.ErrorIs(t, err, ErrNoArtifactAvailable)
}

func TestFailureIsPublished(t *testing.T) {
	gen := &fakeGenerator{err: remote.ErrGenerationRequestFailed}
	s := newTestStudio(gen, &fakePreview{}, &manualTimer{})
	_ = s.Generate(context.Background(), DefaultForm())

	first := <-s.Updates()
	assert.Equal(t, ProgressInFlight, first.Controls.Progress)
	assert.NoError(t, first.Err)
	second := <-s.Updates()
	assert.ErrorIs(t, second.Err, remote.ErrGenerationRequestFailed)
}

func TestRetryAfterFailure(t *testing.T) {
	timer := &manualTimer{}
	gen := &fakeGenerator{err: errors.New("offline")}
	s := newTestStudio(gen, &fakePreview{}, timer)
	require.Error(t, s.Generate(context.Background(), DefaultForm()))

	gen.err = nil
	gen.data = []byte("MThd")
	require.NoError(t, s.Generate(context.Background(), DefaultForm()))
	assert.Equal(t, 1, timer.stopped, "pending reset is cancelled by a new request")
	assert.True(t, s.Controls().DownloadEnabled)
}

func TestInvalidFormNeverReachesService(t *testing.T) {
	gen := &fakeGenerator{}
	s := newTestStudio(gen, &fakePreview{}, &manualTimer{})
	form := DefaultForm()
	form.Scale = "phrygian"
	assert.ErrorIs(t, s.Generate(context.Background(), form), theory.ErrInvalidScale)
	form = DefaultForm()
	form.Tempo = -1
	assert.ErrorIs(t, s.Generate(context.Background(), form), pattern.ErrInvalidTempo)
	assert.Empty(t, gen.calls)
	assert.True(t, s.Controls().GenerateEnabled)
}

func TestTogglePlayAndStop(t *testing.T) {
	preview := &fakePreview{}
	s := newTestStudio(&fakeGenerator{}, preview, &manualTimer{})

	form := DefaultForm()
	form.Key = "Eb"
	form.Scale = "minor"
	require.NoError(t, s.TogglePlay(form))
	c := s.Controls()
	assert.Equal(t, "Pause", c.PlayLabel)
	assert.True(t, c.StopEnabled)
	assert.Equal(t, "Eb", preview.last.Key)
	assert.Equal(t, theory.Minor, preview.last.Scale)

	require.NoError(t, s.TogglePlay(form))
	assert.Equal(t, "Play", s.Controls().PlayLabel)

	// Stop is safe in any state.
	s.Stop()
	s.Stop()
	assert.False(t, s.Controls().StopEnabled)
}

func TestPauseAllowedAfterFailedGeneration(t *testing.T) {
	preview := &fakePreview{}
	gen := &fakeGenerator{err: errors.New("offline")}
	s := newTestStudio(gen, preview, &manualTimer{})
	require.NoError(t, s.TogglePlay(DefaultForm()))
	require.Error(t, s.Generate(context.Background(), DefaultForm()))

	c := s.Controls()
	assert.False(t, c.PlayEnabled)
	assert.True(t, c.StopEnabled)
	require.NoError(t, s.TogglePlay(DefaultForm()))
	assert.False(t, preview.playing)
}

func TestDownloadWritesArtifact(t *testing.T) {
	gen := &fakeGenerator{data: []byte("MThd\x00\x00\x00\x06")}
	s := newTestStudio(gen, &fakePreview{}, &manualTimer{})
	require.NoError(t, s.Generate(context.Background(), DefaultForm()))

	dir := filepath.Join(t.TempDir(), "out")
	path, err := s.Download(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "generated_music.mid"), path)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, gen.data, got)
}

func TestStudioWithRealPlayer(t *testing.T) {
	engine, err := patternplay.NewAudioEngine(8000)
	require.NoError(t, err)
	pl, err := patternplay.NewPlayer(engine)
	require.NoError(t, err)
	s := newTestStudio(&fakeGenerator{}, &fakePreview{}, &manualTimer{})
	s.preview = pl

	require.NoError(t, s.TogglePlay(DefaultForm()))
	engine.Process(make([]float32, 2*4000))
	assert.Equal(t, 1, engine.Transport().ActiveLoops())
	require.NoError(t, s.TogglePlay(DefaultForm()))
	s.Stop()
	assert.Equal(t, 0, engine.Transport().ActiveLoops())
}
