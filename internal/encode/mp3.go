package encode

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/viert/go-lame"
)

// mp3Encoder streams quantized frames through LAME in arrival order.
// The requested bit depth is ignored: LAME consumes 16-bit samples.
type mp3Encoder struct {
	channels int

	buf      bytes.Buffer
	enc      *lame.Encoder
	finished bool
}

// NewMP3 returns an MP3 encoder for the given rate and channel count.
func NewMP3(sampleRate, channels int) (Encoder, error) {
	e := &mp3Encoder{channels: channels}
	e.enc = lame.NewEncoder(&e.buf)
	if err := e.enc.SetNumChannels(channels); err != nil {
		return nil, fmt.Errorf("configuring mp3 channels: %w", err)
	}
	if err := e.enc.SetInSamplerate(sampleRate); err != nil {
		return nil, fmt.Errorf("configuring mp3 sample rate: %w", err)
	}
	return e, nil
}

// Push quantizes one buffer to interleaved s16le and feeds it to LAME.
func (e *mp3Encoder) Push(samples [][]float32) error {
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
	chunk := make([]byte, frames*e.channels*2)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < e.channels; ch++ {
			off := (i*e.channels + ch) * 2
			binary.LittleEndian.PutUint16(chunk[off:], uint16(quantize16(samples[ch][i])))
		}
	}

	if _, err := e.enc.Write(chunk); err != nil {
		return fmt.Errorf("encoding mp3 frames: %w", err)
	}
	return nil
}

// Finish flushes LAME's internal state and returns the complete stream.
func (e *mp3Encoder) Finish() (EncodedAudio, error) {
	if e.finished {
		return EncodedAudio{}, errFinished
	}
	e.finished = true

	e.enc.Close()
	return EncodedAudio{Bytes: e.buf.Bytes(), MIME: MIMEMP3}, nil
}
