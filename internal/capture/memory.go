package capture

import (
	"context"
	"sync"
)

// MemorySource feeds programmatic buffers into the pipeline. It backs
// unit tests and in-process callers that already hold PCM data.
type MemorySource struct {
	cfg Config
	out chan Buffer

	mu       sync.Mutex
	closed   bool
	stopOnce sync.Once
}

// NewMemorySource returns a source that delivers whatever Push is given.
// The channel is deep enough that pushes never block in practice.
func NewMemorySource(cfg Config) *MemorySource {
	return &MemorySource{
		cfg: cfg,
		out: make(chan Buffer, 1024),
	}
}

func (s *MemorySource) Start(_ context.Context) error { return nil }

func (s *MemorySource) Buffers() <-chan Buffer { return s.out }

func (s *MemorySource) Format() Config { return s.cfg }

func (s *MemorySource) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.out)
		s.mu.Unlock()
	})
	return nil
}

// Push delivers one buffer as if it came from a capture callback. Pushes
// after Stop are discarded.
func (s *MemorySource) Push(samples [][]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.out <- Buffer{Samples: samples}
}

// Pending reports how many pushed buffers have not been consumed yet.
// Tests use it to wait until the pipeline has drained.
func (s *MemorySource) Pending() int {
	return len(s.out)
}

// MemoryBackend hands out a pre-built memory source. It is not part of
// the name registry; callers construct it directly.
type MemoryBackend struct {
	Source *MemorySource
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Open(cfg Config) (Source, error) {
	if b.Source != nil {
		return b.Source, nil
	}
	return NewMemorySource(cfg), nil
}

func (b *MemoryBackend) Capabilities() (Capabilities, error) {
	return Capabilities{
		Backend:       "memory",
		MinSampleRate: 8000,
		MaxSampleRate: 192000,
		SampleSizes:   []int{16, 32},
		MaxChannels:   2,
	}, nil
}
