package patternplay

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cbegin/patternplay-go/internal/pattern"
)

// RenderPreview renders seconds of the preview for params on a fresh
// headless engine.
func RenderPreview(params pattern.Params, sampleRate int, seconds float64, opts ...EngineOption) ([]float32, error) {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return nil, fmt.Errorf("invalid render length %v seconds", seconds)
	}
	engine, err := NewAudioEngine(sampleRate, opts...)
	if err != nil {
		return nil, err
	}
	player, err := NewPlayer(engine)
	if err != nil {
		return nil, err
	}
	if err := player.Play(params); err != nil {
		return nil, err
	}
	frames := int(float64(sampleRate) * seconds)
	out := make([]float32, frames*2)
	engine.Process(out)
	player.Stop()
	return out, nil
}

func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3) // IEEE float
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
