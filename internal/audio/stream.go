package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

type SampleSource interface {
	Process(dst []float32)
}

// StreamReader adapts a SampleSource to the float32 little-endian stereo
// stream ebiten reads from. Each Read pulls whole frames from the source.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
	closed bool
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.EOF
	}

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(r.buf[i]))
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Context is the process audio device. ebiten allows one per process, so the
// caller creates it once and hands it to whatever needs to play.
type Context struct {
	ctx        *ebitaudio.Context
	sampleRate int
}

func NewContext(sampleRate int) *Context {
	return &Context{
		ctx:        ebitaudio.NewContext(sampleRate),
		sampleRate: sampleRate,
	}
}

func (c *Context) SampleRate() int { return c.sampleRate }

type Player struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

// NewPlayer starts a device stream that pulls from source. The stream is
// paused until Play.
func (c *Context) NewPlayer(source SampleSource) (*Player, error) {
	reader := NewStreamReader(source)
	pl, err := c.ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	// Small buffer keeps trigger-to-sound latency low.
	pl.SetBufferSize(40 * time.Millisecond)
	return &Player{player: pl, reader: reader}, nil
}

func (p *Player) Play() { p.player.Play() }

func (p *Player) Close() error {
	p.player.Pause()
	p.player.Close()
	return p.reader.Close()
}
