package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/getsentry/sentry-go"

	"github.com/cbegin/patternplay-go"
	"github.com/cbegin/patternplay-go/internal/config"
	"github.com/cbegin/patternplay-go/internal/debug"
	"github.com/cbegin/patternplay-go/internal/remote"
	"github.com/cbegin/patternplay-go/internal/studio"
)

func main() {
	debugFlag := flag.Bool("debug", false, "write debug log to ~/.config/patternplay/debug.log")
	flag.Parse()

	if *debugFlag {
		if err := debug.Enable(""); err != nil {
			log.Fatal(err)
		}
		defer debug.Disable()
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	m := newMeter()
	engine, err := patternplay.NewAudioEngine(cfg.SampleRate, patternplay.WithSampleTap(m.Tap))
	if err != nil {
		log.Fatal(err)
	}
	if err := engine.Open(); err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	pl, err := patternplay.NewPlayer(engine, patternplay.WithEventBuffer(64))
	if err != nil {
		log.Fatal(err)
	}

	client := remote.NewClient(cfg.ServerURL, remote.WithTimeout(cfg.Timeout()))
	s := studio.New(client, pl,
		studio.WithProgressResetDelay(cfg.ProgressResetDelay()),
		studio.WithErrorReporter(func(err error) {
			debug.Log("ui", "generation failed: %v", err)
			sentry.CaptureException(err)
		}))

	fd := cfg.Form
	ui := model{
		studio: s,
		meter:  m,
		events: pl.Watch(),
		form: studio.Form{
			Key:          fd.Key,
			Scale:        fd.Scale,
			Tempo:        fd.Tempo,
			Octave:       fd.Octave,
			EnableChords: fd.EnableChords,
			EnableDrums:  fd.EnableDrums,
			Genre:        fd.Genre,
		},
		controls: s.Controls(),
		outDir:   cfg.OutputDir,
		timeout:  cfg.Timeout(),
	}

	final, err := tea.NewProgram(ui).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Remember the form for the next session.
	if fm, ok := final.(model); ok {
		f := fm.form
		cfg.Form = config.FormDefaults{
			Key:          f.Key,
			Scale:        f.Scale,
			Tempo:        f.Tempo,
			Octave:       f.Octave,
			EnableChords: f.EnableChords,
			EnableDrums:  f.EnableDrums,
			Genre:        f.Genre,
		}
		if err := cfg.Save(); err != nil {
			debug.Log("ui", "save config: %v", err)
		}
	}
}
