package encode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// errFinished guards the terminal encoder state.
var errFinished = errors.New("encoder already finalized")

// wavEncoder accumulates interleaved sample data and renders the
// canonical 44-byte header once the data size is known.
type wavEncoder struct {
	sampleRate int
	channels   int
	bitDepth   int

	data     bytes.Buffer
	finished bool
}

// NewWAV returns a WAV encoder. Bit depth 32 selects IEEE float storage;
// anything else is treated as 16-bit PCM.
func NewWAV(sampleRate, channels, bitDepth int) Encoder {
	if bitDepth != 32 {
		bitDepth = 16
	}
	return &wavEncoder{
		sampleRate: sampleRate,
		channels:   channels,
		bitDepth:   bitDepth,
	}
}

// Push appends one buffer, interleaving channels frame by frame
// (L,R,L,R,…) in sample order.
func (e *wavEncoder) Push(samples [][]float32) error {
	if e.finished {
		return errFinished
	}
	if len(samples) != e.channels {
		return fmt.Errorf("expected %d channels, got %d", e.channels, len(samples))
	}
	if len(samples) == 0 || len(samples[0]) == 0 {
		return nil
	}

	frames := len(samples[0])
	bytesPerSample := e.bitDepth / 8
	chunk := make([]byte, frames*e.channels*bytesPerSample)

	for i := 0; i < frames; i++ {
		for ch := 0; ch < e.channels; ch++ {
			off := (i*e.channels + ch) * bytesPerSample
			s := samples[ch][i]
			if e.bitDepth == 32 {
				binary.LittleEndian.PutUint32(chunk[off:], math.Float32bits(s))
			} else {
				binary.LittleEndian.PutUint16(chunk[off:], uint16(quantize16(s)))
			}
		}
	}

	e.data.Write(chunk)
	return nil
}

// Finish renders header plus data. The encoder is unusable afterwards.
func (e *wavEncoder) Finish() (EncodedAudio, error) {
	if e.finished {
		return EncodedAudio{}, errFinished
	}
	e.finished = true

	bytesPerSample := e.bitDepth / 8
	dataSize := e.data.Len()

	// Canonical WAV header: audioFormat 1 for integer PCM, 3 for IEEE float.
	audioFormat := uint16(1)
	if e.bitDepth == 32 {
		audioFormat = 3
	}
	byteRate := e.sampleRate * e.channels * bytesPerSample
	blockAlign := e.channels * bytesPerSample

	var buf bytes.Buffer
	buf.Grow(44 + dataSize)

	buf.Write([]byte("RIFF"))
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.Write([]byte("WAVE"))

	buf.Write([]byte("fmt "))
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, audioFormat)
	binary.Write(&buf, binary.LittleEndian, uint16(e.channels))
	binary.Write(&buf, binary.LittleEndian, uint32(e.sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(e.bitDepth))

	buf.Write([]byte("data"))
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(e.data.Bytes())

	return EncodedAudio{Bytes: buf.Bytes(), MIME: MIMEWAV}, nil
}

// quantize16 clamps to [-1,1] and scales by the signed 16-bit range,
// rounding half away from zero. The asymmetric scale keeps -1.0 at
// -32768 and 1.0 at 32767.
func quantize16(s float32) int16 {
	if s < -1 {
		s = -1
	} else if s > 1 {
		s = 1
	}
	if s < 0 {
		return int16(math.Round(float64(s) * 32768))
	}
	return int16(math.Round(float64(s) * 32767))
}
