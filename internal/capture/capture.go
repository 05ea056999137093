package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Buffer is one chunk of captured audio: one float32 slice per channel,
// all the same length. Buffers are owned by the receiver once delivered.
type Buffer struct {
	Samples [][]float32
}

// Frames returns the number of frames (samples per channel) in the buffer.
func (b Buffer) Frames() int {
	if len(b.Samples) == 0 {
		return 0
	}
	return len(b.Samples[0])
}

// Config describes the capture format requested for a session. The three
// processing hints are best-effort: backends that cannot honor them
// ignore them.
type Config struct {
	SampleRate       int
	Channels         int
	SampleSize       int
	Device           string
	AutoGainControl  bool
	EchoCancellation bool
	NoiseSuppression bool
}

// Source is one live capture session. Start begins buffer delivery on the
// Buffers channel; Stop halts delivery, releases the device and closes
// the channel. Stop is idempotent and safe to call concurrently.
type Source interface {
	Start(ctx context.Context) error
	Stop() error
	Buffers() <-chan Buffer

	// Format reports the effective capture format, which may differ from
	// the requested one when the device cannot honor it exactly.
	Format() Config
}

// DeviceInfo describes one capture device reported by a backend.
type DeviceInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// Capabilities describes what a backend can capture. Normalization clamps
// the requested options into these bounds before a session opens.
type Capabilities struct {
	Backend       string       `json:"backend"`
	MinSampleRate int          `json:"minSampleRate"`
	MaxSampleRate int          `json:"maxSampleRate"`
	SampleSizes   []int        `json:"sampleSizes"`
	MaxChannels   int          `json:"maxChannels"`
	Devices       []DeviceInfo `json:"devices"`
}

// Backend creates capture sources and reports device capabilities.
type Backend interface {
	Name() string
	Open(cfg Config) (Source, error)
	Capabilities() (Capabilities, error)
}

// Known backend names.
const (
	BackendAuto      = "auto"
	BackendMiniaudio = "miniaudio"
	BackendPortAudio = "portaudio"
	BackendFile      = "file"
)

// New resolves a backend by name. The empty string and "auto" select the
// miniaudio backend, which is available on every desktop platform.
func New(name string) (Backend, error) {
	switch strings.ToLower(name) {
	case "", BackendAuto, BackendMiniaudio:
		return NewMiniaudioBackend(), nil
	case BackendPortAudio:
		return NewPortAudioBackend(), nil
	case BackendFile:
		return NewFileBackend(), nil
	default:
		return nil, fmt.Errorf("unknown capture backend: %s", name)
	}
}

// Names returns the selectable backend names.
func Names() []string {
	return []string{BackendMiniaudio, BackendPortAudio, BackendFile}
}

// deinterleaveF32LE splits an interleaved little-endian float32 byte
// stream into per-channel sample slices.
func deinterleaveF32LE(data []byte, frames, channels int) Buffer {
	samples := make([][]float32, channels)
	for ch := range samples {
		samples[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 4
			if off+4 > len(data) {
				return Buffer{Samples: samples}
			}
			bits := binary.LittleEndian.Uint32(data[off : off+4])
			samples[ch][i] = math.Float32frombits(bits)
		}
	}
	return Buffer{Samples: samples}
}

// deinterleave splits an interleaved float32 slice into per-channel
// sample slices.
func deinterleave(data []float32, channels int) Buffer {
	frames := len(data) / channels
	samples := make([][]float32, channels)
	for ch := range samples {
		samples[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			samples[ch][i] = data[i*channels+ch]
		}
	}
	return Buffer{Samples: samples}
}
