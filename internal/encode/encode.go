package encode

import (
	"fmt"

	"github.com/audiolibrelab/voicecapture/internal/options"
)

// MIME types of the produced streams.
const (
	MIMEWAV = "audio/wav"
	MIMEMP3 = "audio/mpeg"
)

// EncodedAudio is a finished byte stream and its MIME type.
type EncodedAudio struct {
	Bytes []byte
	MIME  string
}

// Encoder accumulates per-channel float32 buffers and renders the final
// byte stream. Push order defines byte order. Finish is terminal: after
// it returns, both Push and a second Finish fail.
type Encoder interface {
	Push(samples [][]float32) error
	Finish() (EncodedAudio, error)
}

// New returns an encoder for the requested format. WAV honors the bit
// depth (16-bit PCM or 32-bit IEEE float); MP3 always encodes from
// 16-bit samples and carries over only rate and channel count.
func New(format string, sampleRate, channels, sampleSize int) (Encoder, error) {
	switch format {
	case options.FormatWAV:
		return NewWAV(sampleRate, channels, sampleSize), nil
	case options.FormatMP3:
		return NewMP3(sampleRate, channels)
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
