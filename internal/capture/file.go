package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

// fileFrameDuration paces replay so downstream sees realtime-like delivery.
const fileFrameDuration = 20 * time.Millisecond

// FileBackend replays a WAV file as if it were a live capture device. The
// Config.Device field carries the file path. The file's own sample rate
// and channel count win over the requested ones.
type FileBackend struct{}

// NewFileBackend returns the file replay backend.
func NewFileBackend() *FileBackend { return &FileBackend{} }

// Name implements Backend.
func (b *FileBackend) Name() string { return BackendFile }

// Capabilities implements Backend. Replay accepts any format the decoder
// does, so the full option range is reported.
func (b *FileBackend) Capabilities() (Capabilities, error) {
	return Capabilities{
		Backend:       BackendFile,
		MinSampleRate: 8000,
		MaxSampleRate: 192000,
		SampleSizes:   []int{16, 32},
		MaxChannels:   2,
	}, nil
}

// Open decodes the WAV header and prepares a replay session.
func (b *FileBackend) Open(cfg Config) (Source, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("file backend needs a path in the device field")
	}
	f, err := os.Open(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("opening audio file: %w", err)
	}
	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("not a valid WAV file: %s", cfg.Device)
	}

	effective := cfg
	effective.SampleRate = int(decoder.SampleRate)
	effective.Channels = int(decoder.NumChans)

	return &fileSource{
		cfg:     effective,
		file:    f,
		decoder: decoder,
		out:     make(chan Buffer, outChanDepth),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

type fileSource struct {
	cfg     Config
	file    *os.File
	decoder *wav.Decoder

	out     chan Buffer
	done    chan struct{}
	stopped chan struct{}

	started  bool
	stopOnce sync.Once
}

func (s *fileSource) Buffers() <-chan Buffer { return s.out }

func (s *fileSource) Format() Config { return s.cfg }

// Start decodes the whole file and replays it in 20ms frames on a ticker.
// When the file runs out the channel stays open; only Stop closes it.
func (s *fileSource) Start(ctx context.Context) error {
	buf, err := s.decoder.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("decoding audio file: %w", err)
	}

	channels := s.cfg.Channels
	framesPerChunk := s.cfg.SampleRate * int(fileFrameDuration) / int(time.Second)
	samplesPerChunk := framesPerChunk * channels
	scale := float32(int(1) << (s.decoder.BitDepth - 1))

	s.started = true
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(fileFrameDuration)
		defer ticker.Stop()
		for start := 0; start < len(buf.Data); start += samplesPerChunk {
			end := min(start+samplesPerChunk, len(buf.Data))
			chunk := make([]float32, end-start)
			for i := range chunk {
				chunk[i] = float32(buf.Data[start+i]) / scale
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
			select {
			case s.out <- deinterleave(chunk, channels):
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
		slog.Debug("Audio file replay finished", "path", s.cfg.Device)
	}()

	return nil
}

func (s *fileSource) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.started {
			<-s.stopped
		}
		s.file.Close()
		close(s.out)
	})
	return nil
}
