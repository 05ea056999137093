package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// outChanDepth bounds how far capture may run ahead of the consumer. A
// full channel drops the oldest-pending buffer rather than stalling the
// device callback.
const outChanDepth = 64

// MiniaudioBackend captures through the miniaudio library. It is the
// default backend and works against the native audio stack of every
// desktop platform (WASAPI, CoreAudio, ALSA/PulseAudio).
type MiniaudioBackend struct{}

// NewMiniaudioBackend returns the miniaudio capture backend.
func NewMiniaudioBackend() *MiniaudioBackend { return &MiniaudioBackend{} }

// Name implements Backend.
func (b *MiniaudioBackend) Name() string { return BackendMiniaudio }

// Capabilities enumerates capture devices. miniaudio converts between the
// device rate and the requested rate internally, so the full supported
// range is reported rather than per-device native rates.
func (b *MiniaudioBackend) Capabilities() (Capabilities, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return Capabilities{}, fmt.Errorf("initializing audio context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return Capabilities{}, fmt.Errorf("listing capture devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, DeviceInfo{
			ID:      info.Name(),
			Name:    info.Name(),
			Default: info.IsDefault != 0,
		})
	}

	return Capabilities{
		Backend:       BackendMiniaudio,
		MinSampleRate: 8000,
		MaxSampleRate: 192000,
		SampleSizes:   []int{16, 32},
		MaxChannels:   2,
		Devices:       devices,
	}, nil
}

// Open prepares a capture session. The device does not start until
// Source.Start is called.
func (b *MiniaudioBackend) Open(cfg Config) (Source, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	return &miniaudioSource{
		mctx: mctx,
		cfg:  cfg,
		out:  make(chan Buffer, outChanDepth),
	}, nil
}

type miniaudioSource struct {
	mctx *malgo.AllocatedContext
	cfg  Config
	out  chan Buffer

	mu     sync.Mutex
	device *malgo.Device

	dropped  atomic.Uint64
	stopOnce sync.Once
}

func (s *miniaudioSource) Buffers() <-chan Buffer { return s.out }

func (s *miniaudioSource) Format() Config { return s.cfg }

// Start opens the capture device and begins buffer delivery. Device
// selection is by name; an empty name selects the system default.
func (s *miniaudioSource) Start(_ context.Context) error {
	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = uint32(s.cfg.Channels)
	deviceCfg.SampleRate = uint32(s.cfg.SampleRate)

	if s.cfg.Device != "" {
		infos, err := s.mctx.Devices(malgo.Capture)
		if err != nil {
			return fmt.Errorf("listing capture devices: %w", err)
		}
		found := false
		for _, info := range infos {
			if info.Name() == s.cfg.Device {
				id := info.ID
				deviceCfg.Capture.DeviceID = id.Pointer()
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("capture device not found: %s", s.cfg.Device)
		}
	}

	if s.cfg.AutoGainControl || s.cfg.EchoCancellation || s.cfg.NoiseSuppression {
		slog.Debug("Processing hints not supported by miniaudio, capturing raw",
			"autoGainControl", s.cfg.AutoGainControl,
			"echoCancellation", s.cfg.EchoCancellation,
			"noiseSuppression", s.cfg.NoiseSuppression)
	}

	callbacks := malgo.DeviceCallbacks{
		Data: s.onData,
	}

	device, err := malgo.InitDevice(s.mctx.Context, deviceCfg, callbacks)
	if err != nil {
		return fmt.Errorf("initializing capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("starting capture device: %w", err)
	}

	s.mu.Lock()
	s.device = device
	s.mu.Unlock()
	return nil
}

// onData is the malgo callback invoked on the capture thread whenever
// audio is available. It only copies and forwards; all processing happens
// downstream. A saturated consumer loses buffers instead of blocking the
// audio thread.
func (s *miniaudioSource) onData(_, pSample []byte, frameCount uint32) {
	buf := deinterleaveF32LE(pSample, int(frameCount), s.cfg.Channels)
	select {
	case s.out <- buf:
	default:
		s.dropped.Add(1)
	}
}

// Stop halts the device and closes the buffer channel. Uninit blocks
// until the data callback has returned, so no send can race the close.
func (s *miniaudioSource) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.device != nil {
			s.device.Uninit()
			s.device = nil
		}
		s.mu.Unlock()

		_ = s.mctx.Uninit()
		s.mctx.Free()

		if n := s.dropped.Load(); n > 0 {
			slog.Warn("Capture buffers dropped under backpressure", "count", n)
		}
		close(s.out)
	})
	return nil
}
