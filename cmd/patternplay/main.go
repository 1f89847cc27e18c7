package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"github.com/cbegin/patternplay-go"
	"github.com/cbegin/patternplay-go/internal/config"
	"github.com/cbegin/patternplay-go/internal/midiout"
	"github.com/cbegin/patternplay-go/internal/pattern"
	"github.com/cbegin/patternplay-go/internal/remote"
	"github.com/cbegin/patternplay-go/internal/studio"
)

const (
	sentryFlushTimeout = 2 * time.Second
	releaseTail        = 400 * time.Millisecond
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	form := cfg.Form
	var (
		key        = flag.String("key", form.Key, "key: C, C#, Db ... B")
		scale      = flag.String("scale", form.Scale, "scale: major|minor")
		tempo      = flag.Int("tempo", form.Tempo, "tempo in BPM")
		octave     = flag.Int("octave", form.Octave, "base octave of the melody")
		chords     = flag.Bool("chords", form.EnableChords, "play the triad under the melody")
		drums      = flag.Bool("drums", form.EnableDrums, "loop the drum cell")
		genre      = flag.String("genre", form.Genre, "genre forwarded to the generation service")
		loops      = flag.Int("loops", 4, "stop after N drum cycles (0 = until interrupted)")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		midiPort   = flag.String("midi-port", cfg.MIDIPort, "send notes to this MIDI output instead of the built-in synth")
		listPorts  = flag.Bool("list-ports", false, "list MIDI output ports and exit")
		wavPath    = flag.String("wav", "", "render the preview to a WAV file instead of playing it")
		generate   = flag.Bool("generate", false, "ask the generation service for a MIDI file")
		outDir     = flag.String("out", cfg.OutputDir, "directory "+studio.ArtifactName+" is saved to")
		serverURL  = flag.String("server", cfg.ServerURL, "generation service base URL")
		sampleRate = flag.Int("sample-rate", cfg.SampleRate, "output sample rate")
	)
	flag.Parse()

	if *listPorts {
		for _, name := range midiout.PortNames() {
			fmt.Println(name)
		}
		return
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			defer sentry.Flush(sentryFlushTimeout)
		}
	}

	f := studio.Form{
		Key:          *key,
		Scale:        *scale,
		Tempo:        *tempo,
		Octave:       *octave,
		EnableChords: *chords,
		EnableDrums:  *drums,
		Genre:        *genre,
	}
	params, err := f.Params()
	if err != nil {
		log.Fatal(err)
	}

	switch {
	case *generate:
		err = runGenerate(f, *serverURL, cfg.Timeout(), *outDir, *sampleRate)
	case strings.TrimSpace(*wavPath) != "":
		err = runRender(params, *wavPath, *loops, *sampleRate)
	default:
		err = runPlay(params, *loops, *volume, *midiPort, *sampleRate)
	}
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
}

func runGenerate(f studio.Form, serverURL string, timeout time.Duration, outDir string, sampleRate int) error {
	engine, err := patternplay.NewAudioEngine(sampleRate)
	if err != nil {
		return err
	}
	pl, err := patternplay.NewPlayer(engine)
	if err != nil {
		return err
	}
	client := remote.NewClient(serverURL, remote.WithTimeout(timeout))
	s := studio.New(client, pl, studio.WithErrorReporter(func(err error) {
		sentry.CaptureException(err)
	}))
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	fmt.Printf("generating from %s ...\n", client.BaseURL())
	if err := s.Generate(ctx, f); err != nil {
		return err
	}
	path, err := s.Download(outDir)
	if err != nil {
		return err
	}
	fmt.Printf("saved %s\n", path)
	return nil
}

// previewSeconds covers the motif and, with drums, the requested cycles.
func previewSeconds(p pattern.Params, loops int) float64 {
	beat := p.Beat()
	secs := 4 * beat
	if p.EnableDrums && loops > 0 {
		if cycles := float64(loops) * 2 * beat; cycles > secs {
			secs = cycles
		}
	}
	return secs + releaseTail.Seconds()
}

func runRender(p pattern.Params, path string, loops int, sampleRate int) error {
	if loops <= 0 {
		loops = 4
	}
	samples, err := patternplay.RenderPreview(p, sampleRate, previewSeconds(p, loops))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, patternplay.EncodeWAVFloat32LE(samples, sampleRate, 2), 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d frames)\n", path, len(samples)/2)
	return nil
}

func runPlay(p pattern.Params, loops int, volume float64, midiPort string, sampleRate int) error {
	var opts []patternplay.EngineOption
	if midiPort != "" {
		send, err := midiout.OpenPort(midiPort)
		if err != nil {
			return fmt.Errorf("%w (available: %s)", err, strings.Join(midiout.PortNames(), ", "))
		}
		opts = append(opts, patternplay.WithVoices(midiout.NewVoices(send, 0, 1)))
	}
	engine, err := patternplay.NewAudioEngine(sampleRate, opts...)
	if err != nil {
		return err
	}
	if err := engine.Open(); err != nil {
		return err
	}
	defer engine.Close()

	pl, err := patternplay.NewPlayer(engine, patternplay.WithEventBuffer(64))
	if err != nil {
		return err
	}
	pl.SetMasterVolume(volume)
	ch := pl.Watch()
	if err := pl.Toggle(p); err != nil {
		return err
	}

	var deadline <-chan time.Time
	if !p.EnableDrums {
		deadline = time.After(time.Duration(previewSeconds(p, 0) * float64(time.Second)))
	}
	completed := 0
	for {
		select {
		case <-deadline:
			pl.Stop()
			fmt.Println("playback completed")
			return nil
		case event := <-ch:
			switch event.Kind {
			case patternplay.EventLoopCompleted:
				completed++
				fmt.Printf("loop %d completed\n", completed)
				if loops > 0 && completed >= loops {
					pl.Stop()
					time.Sleep(releaseTail)
					return nil
				}
			case patternplay.EventTrigger:
				fmt.Printf("%-6s note %3d at %.3fs\n", event.Trigger.Target, event.Trigger.Note, event.Trigger.Time)
			}
		}
	}
}
