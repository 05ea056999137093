package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend captures through the PortAudio library. It exists as
// an alternative for hosts where the miniaudio backend misbehaves.
type PortAudioBackend struct{}

// NewPortAudioBackend returns the PortAudio capture backend.
func NewPortAudioBackend() *PortAudioBackend { return &PortAudioBackend{} }

// Name implements Backend.
func (b *PortAudioBackend) Name() string { return BackendPortAudio }

// Capabilities enumerates input devices. PortAudio does not resample, so
// the upper rate bound is the default device's native rate.
func (b *PortAudioBackend) Capabilities() (Capabilities, error) {
	if err := portaudio.Initialize(); err != nil {
		return Capabilities{}, fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	devs, err := portaudio.Devices()
	if err != nil {
		return Capabilities{}, fmt.Errorf("listing devices: %w", err)
	}
	def, err := portaudio.DefaultInputDevice()
	if err != nil {
		return Capabilities{}, fmt.Errorf("no input device: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(devs))
	maxChannels := 0
	for _, d := range devs {
		if d.MaxInputChannels == 0 {
			continue
		}
		if d.MaxInputChannels > maxChannels {
			maxChannels = d.MaxInputChannels
		}
		devices = append(devices, DeviceInfo{
			ID:      d.Name,
			Name:    d.Name,
			Default: d.Name == def.Name,
		})
	}
	if maxChannels > 2 {
		maxChannels = 2
	}

	return Capabilities{
		Backend:       BackendPortAudio,
		MinSampleRate: 8000,
		MaxSampleRate: int(def.DefaultSampleRate),
		SampleSizes:   []int{16, 32},
		MaxChannels:   maxChannels,
		Devices:       devices,
	}, nil
}

// Open initializes PortAudio and opens an input stream. The stream does
// not start until Source.Start is called.
func (b *PortAudioBackend) Open(cfg Config) (Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}

	var input *portaudio.DeviceInfo
	if cfg.Device != "" {
		devs, err := portaudio.Devices()
		if err != nil {
			portaudio.Terminate()
			return nil, fmt.Errorf("listing devices: %w", err)
		}
		for _, d := range devs {
			if d.Name == cfg.Device && d.MaxInputChannels > 0 {
				input = d
				break
			}
		}
		if input == nil {
			portaudio.Terminate()
			return nil, fmt.Errorf("capture device not found: %s", cfg.Device)
		}
	} else {
		var err error
		input, err = portaudio.DefaultInputDevice()
		if err != nil {
			portaudio.Terminate()
			return nil, fmt.Errorf("no input device: %w", err)
		}
	}

	// 20ms frames, e.g. 960 per channel at 48kHz.
	frames := cfg.SampleRate / 50
	buf := make([]float32, frames*cfg.Channels)

	params := portaudio.LowLatencyParameters(input, nil)
	params.Input.Channels = cfg.Channels
	params.Output.Device = nil
	params.Output.Channels = 0
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = frames

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open capture stream: %w", err)
	}

	return &portAudioSource{
		cfg:     cfg,
		stream:  stream,
		buf:     buf,
		out:     make(chan Buffer, outChanDepth),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

type portAudioSource struct {
	cfg    Config
	stream *portaudio.Stream
	buf    []float32

	out     chan Buffer
	done    chan struct{}
	stopped chan struct{}

	started  bool
	stopOnce sync.Once
}

func (s *portAudioSource) Buffers() <-chan Buffer { return s.out }

func (s *portAudioSource) Format() Config { return s.cfg }

func (s *portAudioSource) Start(_ context.Context) error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("start capture stream: %w", err)
	}
	s.started = true
	go s.capture()
	return nil
}

// capture reads frames in a blocking loop and forwards them until Stop.
func (s *portAudioSource) capture() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			slog.Warn("Capture stream read failed, delivery stopped", "error", err)
			return
		}
		buf := deinterleave(s.buf, s.cfg.Channels)
		select {
		case s.out <- buf:
		case <-s.done:
			return
		}
	}
}

func (s *portAudioSource) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.started {
			<-s.stopped
			_ = s.stream.Stop()
		}
		_ = s.stream.Close()
		portaudio.Terminate()
		close(s.out)
	})
	return nil
}
