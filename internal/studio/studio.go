// Package studio drives the generate / play / stop / download controls a
// front end binds to. It owns the button states, the progress indicator and
// the last generated artifact.
package studio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cbegin/patternplay-go"
	"github.com/cbegin/patternplay-go/internal/debug"
	"github.com/cbegin/patternplay-go/internal/pattern"
	"github.com/cbegin/patternplay-go/internal/remote"
	"github.com/cbegin/patternplay-go/internal/theory"
)

var (
	ErrNoArtifactAvailable = errors.New("no generated artifact available")
	ErrBusy                = errors.New("generation in progress")
)

// ArtifactName is the file name a download is saved under.
const ArtifactName = "generated_music.mid"

const (
	ProgressIdle     = 0
	ProgressInFlight = 50
	ProgressDone     = 100

	DefaultProgressResetDelay = time.Second
)

// Controls is what every button and the progress bar should show.
type Controls struct {
	GenerateEnabled bool
	PlayEnabled     bool
	StopEnabled     bool
	DownloadEnabled bool
	PlayLabel       string
	Progress        int
}

// Update is published whenever Controls change. Err is set when the change
// was caused by a failed request and should be shown to the user.
type Update struct {
	Controls Controls
	Err      error
}

// Form holds the raw field values a front end collects.
type Form struct {
	Key          string
	Scale        string
	Tempo        int
	Octave       int
	EnableChords bool
	EnableDrums  bool
	Genre        string
}

func DefaultForm() Form {
	p := pattern.DefaultParams()
	return Form{
		Key:          p.Key,
		Scale:        string(p.Scale),
		Tempo:        p.Tempo,
		Octave:       p.Octave,
		EnableChords: p.EnableChords,
		EnableDrums:  p.EnableDrums,
		Genre:        remote.DefaultGenre,
	}
}

// Params validates f and converts it into generation parameters.
func (f Form) Params() (pattern.Params, error) {
	scale, err := theory.ParseScale(f.Scale)
	if err != nil {
		return pattern.Params{}, err
	}
	p := pattern.Params{
		Key:          f.Key,
		Scale:        scale,
		Tempo:        f.Tempo,
		Octave:       f.Octave,
		EnableChords: f.EnableChords,
		EnableDrums:  f.EnableDrums,
	}
	if err := p.Validate(); err != nil {
		return pattern.Params{}, err
	}
	return p, nil
}

func (f Form) Request() (remote.Request, error) {
	p, err := f.Params()
	if err != nil {
		return remote.Request{}, err
	}
	return remote.Request{Params: p, Genre: f.Genre}, nil
}

// Generator produces the downloadable artifact. *remote.Client is one.
type Generator interface {
	Generate(ctx context.Context, req remote.Request) ([]byte, error)
}

// Preview plays the in-app preview. *patternplay.Player is one.
type Preview interface {
	Toggle(p pattern.Params) error
	Stop()
	Controls() patternplay.Controls
}

type Option func(*Studio)

func WithProgressResetDelay(d time.Duration) Option {
	return func(s *Studio) {
		s.resetDelay = d
	}
}

// WithAfterFunc replaces time.AfterFunc for the progress reset.
func WithAfterFunc(after func(time.Duration, func()) (stop func() bool)) Option {
	return func(s *Studio) {
		s.afterFunc = after
	}
}

// WithErrorReporter receives every failed generation, e.g. for Sentry.
func WithErrorReporter(report func(error)) Option {
	return func(s *Studio) {
		s.report = report
	}
}

type Studio struct {
	mu          sync.Mutex
	gen         Generator
	preview     Preview
	artifact    []byte
	generating  bool
	playAllowed bool
	progress    int
	resetDelay  time.Duration
	afterFunc   func(time.Duration, func()) func() bool
	cancelReset func() bool
	report      func(error)
	updates     chan Update
}

func New(gen Generator, preview Preview, opts ...Option) *Studio {
	s := &Studio{
		gen:         gen,
		preview:     preview,
		playAllowed: true,
		resetDelay:  DefaultProgressResetDelay,
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		updates: make(chan Update, 16),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Updates delivers control changes. Updates are dropped when the channel is
// full; Controls always reports the current state.
func (s *Studio) Updates() <-chan Update { return s.updates }

func (s *Studio) Controls() Controls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controlsLocked()
}

func (s *Studio) controlsLocked() Controls {
	pc := s.preview.Controls()
	return Controls{
		GenerateEnabled: !s.generating,
		PlayEnabled:     !s.generating && s.playAllowed,
		StopEnabled:     !s.generating && pc.StopEnabled,
		DownloadEnabled: !s.generating && s.artifact != nil,
		PlayLabel:       pc.PlayLabel,
		Progress:        s.progress,
	}
}

func (s *Studio) publishLocked(err error) {
	select {
	case s.updates <- Update{Controls: s.controlsLocked(), Err: err}:
	default:
	}
}

// Generate asks the service for a new artifact. Every control is disabled
// while the request is in flight. On failure the generate control comes
// back while play and download stay disabled, and the error is returned.
func (s *Studio) Generate(ctx context.Context, form Form) error {
	req, err := form.Request()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.generating {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.cancelReset != nil {
		s.cancelReset()
		s.cancelReset = nil
	}
	s.generating = true
	s.playAllowed = false
	s.artifact = nil
	s.progress = ProgressInFlight
	s.publishLocked(nil)
	s.mu.Unlock()

	debug.Log("studio", "generate key=%s scale=%s tempo=%d genre=%s", req.Params.Key, req.Params.Scale, req.Params.Tempo, req.Genre)
	data, genErr := s.gen.Generate(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generating = false
	if genErr != nil {
		debug.Log("studio", "generate failed: %v", genErr)
		if s.report != nil {
			s.report(genErr)
		}
	} else {
		s.artifact = data
		s.playAllowed = true
		s.progress = ProgressDone
	}
	s.scheduleResetLocked()
	s.publishLocked(genErr)
	return genErr
}

func (s *Studio) scheduleResetLocked() {
	s.cancelReset = s.afterFunc(s.resetDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generating {
			return
		}
		s.progress = ProgressIdle
		s.cancelReset = nil
		s.publishLocked(nil)
	})
}

// TogglePlay starts or stops the preview of form.
func (s *Studio) TogglePlay(form Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generating {
		return ErrBusy
	}
	c := s.controlsLocked()
	if !c.StopEnabled && !c.PlayEnabled {
		return ErrNoArtifactAvailable
	}
	p, err := form.Params()
	if err != nil {
		return err
	}
	if err := s.preview.Toggle(p); err != nil {
		return err
	}
	s.publishLocked(nil)
	return nil
}

// Stop ends the preview. It is always safe to call.
func (s *Studio) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preview.Stop()
	s.publishLocked(nil)
}

// Artifact returns a copy of the last generated payload.
func (s *Studio) Artifact() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifact == nil {
		return nil, ErrNoArtifactAvailable
	}
	return append([]byte(nil), s.artifact...), nil
}

// Download writes the artifact to dir/generated_music.mid and returns the path.
func (s *Studio) Download(dir string) (string, error) {
	data, err := s.Artifact()
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, ArtifactName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	debug.Log("studio", "saved %d bytes to %s", len(data), path)
	return path, nil
}
