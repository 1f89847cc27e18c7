package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/patternplay-go"
	"github.com/cbegin/patternplay-go/internal/studio"
	"github.com/cbegin/patternplay-go/internal/theory"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle    = lipgloss.NewStyle().Width(10).Foreground(lipgloss.Color("#888"))
	cursorStyle   = lipgloss.NewStyle().Background(lipgloss.Color("#444"))
	enabledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#fff")).Bold(true)
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	meterStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#666"))
)

var genres = []string{"pop", "rock", "jazz", "ambient", "electronic", "classical"}

type field int

const (
	fieldKey field = iota
	fieldScale
	fieldTempo
	fieldOctave
	fieldChords
	fieldDrums
	fieldGenre
	fieldCount
)

var fieldLabels = [fieldCount]string{"Key", "Scale", "Tempo", "Octave", "Chords", "Drums", "Genre"}

const (
	barWidth   = 40
	tickPeriod = 60 * time.Millisecond
)

type model struct {
	studio   *studio.Studio
	meter    *meter
	events   <-chan patternplay.Event
	form     studio.Form
	cursor   field
	controls studio.Controls
	outDir   string
	timeout  time.Duration
	lastHit  string
	message  string
	isError  bool
	quitting bool
}

type tickMsg time.Time
type studioMsg studio.Update
type playerMsg patternplay.Event
type generatedMsg struct{ err error }

func listenForStudio(s *studio.Studio) tea.Cmd {
	return func() tea.Msg {
		return studioMsg(<-s.Updates())
	}
}

func listenForPlayer(ch <-chan patternplay.Event) tea.Cmd {
	return func() tea.Msg {
		return playerMsg(<-ch)
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickPeriod, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) generate() tea.Cmd {
	s, form, timeout := m.studio, m.form, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return generatedMsg{err: s.Generate(ctx, form)}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(listenForStudio(m.studio), listenForPlayer(m.events), tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		return m, tick()

	case studioMsg:
		m.controls = msg.Controls
		if msg.Err != nil {
			m.setError(msg.Err)
		}
		return m, listenForStudio(m.studio)

	case playerMsg:
		switch msg.Kind {
		case patternplay.EventTrigger:
			m.lastHit = fmt.Sprintf("%s %s", msg.Trigger.Target, theory.FromMIDI(msg.Trigger.Note))
		case patternplay.EventLoopCompleted:
			m.lastHit = fmt.Sprintf("cycle %d", msg.Iteration+1)
		case patternplay.EventStopped:
			m.lastHit = ""
		}
		return m, listenForPlayer(m.events)

	case generatedMsg:
		m.controls = m.studio.Controls()
		if msg.err == nil {
			m.setMessage("MIDI generated, press d to save " + studio.ArtifactName)
		}
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.studio.Stop()
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < fieldCount-1 {
			m.cursor++
		}

	case "left", "h", "-":
		m.adjust(-1)

	case "right", "l", "+", "=":
		m.adjust(1)

	case "g":
		if !m.controls.GenerateEnabled {
			return m, nil
		}
		if _, err := m.form.Params(); err != nil {
			m.setError(err)
			return m, nil
		}
		m.setMessage("generating...")
		return m, m.generate()

	case "p", " ":
		if err := m.studio.TogglePlay(m.form); err != nil {
			m.setError(err)
		}
		m.controls = m.studio.Controls()

	case "s":
		m.studio.Stop()
		m.controls = m.studio.Controls()

	case "d":
		path, err := m.studio.Download(m.outDir)
		if err != nil {
			m.setError(err)
		} else {
			m.setMessage("saved " + path)
		}
	}
	return m, nil
}

func (m *model) setMessage(s string) {
	m.message, m.isError = s, false
}

func (m *model) setError(err error) {
	m.message, m.isError = err.Error(), true
	if errors.Is(err, studio.ErrNoArtifactAvailable) {
		m.message = "nothing to play yet, generate first"
	}
}

func cycle(list []string, current string, delta int) string {
	idx := 0
	for i, v := range list {
		if strings.EqualFold(v, current) {
			idx = i
			break
		}
	}
	return list[(idx+delta+len(list))%len(list)]
}

func (m *model) adjust(delta int) {
	switch m.cursor {
	case fieldKey:
		m.form.Key = cycle(theory.NoteNames(), m.form.Key, delta)
	case fieldScale:
		scales := make([]string, 0, 2)
		for _, s := range theory.Scales() {
			scales = append(scales, string(s))
		}
		m.form.Scale = cycle(scales, m.form.Scale, delta)
	case fieldTempo:
		if t := m.form.Tempo + 5*delta; t >= 20 && t <= 300 {
			m.form.Tempo = t
		}
	case fieldOctave:
		if o := m.form.Octave + delta; o >= 1 && o <= 7 {
			m.form.Octave = o
		}
	case fieldChords:
		m.form.EnableChords = !m.form.EnableChords
	case fieldDrums:
		m.form.EnableDrums = !m.form.EnableDrums
	case fieldGenre:
		m.form.Genre = cycle(genres, m.form.Genre, delta)
	}
}

func (m model) fieldValue(f field) string {
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	switch f {
	case fieldKey:
		return m.form.Key
	case fieldScale:
		return m.form.Scale
	case fieldTempo:
		return fmt.Sprintf("%d bpm", m.form.Tempo)
	case fieldOctave:
		return fmt.Sprintf("%d", m.form.Octave)
	case fieldChords:
		return onOff(m.form.EnableChords)
	case fieldDrums:
		return onOff(m.form.EnableDrums)
	case fieldGenre:
		return m.form.Genre
	}
	return ""
}

func button(label, key string, enabled bool) string {
	text := fmt.Sprintf("[%s] %s", key, label)
	if enabled {
		return enabledStyle.Render(text)
	}
	return disabledStyle.Render(text)
}

func renderBar(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("─", width-filled)
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("patternplay") + "\n\n")

	for f := field(0); f < fieldCount; f++ {
		line := labelStyle.Render(fieldLabels[f]) + " " + m.fieldValue(f)
		if f == m.cursor {
			line = cursorStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")

	c := m.controls
	b.WriteString(strings.Join([]string{
		button("Generate", "g", c.GenerateEnabled),
		button(c.PlayLabel, "p", c.PlayEnabled || c.StopEnabled),
		button("Stop", "s", c.StopEnabled),
		button("Download", "d", c.DownloadEnabled),
	}, "  ") + "\n\n")

	b.WriteString(fmt.Sprintf("Progress [%s] %3d%%\n", renderBar(float64(c.Progress)/100, barWidth), c.Progress))
	peak, _ := m.meter.Levels(2048)
	b.WriteString(fmt.Sprintf("Level    [%s] %s\n", meterStyle.Render(renderBar(dbfs(peak), barWidth)), m.lastHit))

	b.WriteString("\n")
	if m.message != "" {
		if m.isError {
			b.WriteString(errorStyle.Render(m.message) + "\n")
		} else {
			b.WriteString(m.message + "\n")
		}
	}
	b.WriteString("\n" + helpStyle.Render("↑↓ field • ←→ change • g generate • p/space play/pause • s stop • d download • q quit"))
	return b.String()
}
