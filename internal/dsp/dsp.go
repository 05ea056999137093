package dsp

import (
	"github.com/audiolibrelab/voicecapture/internal/options"
)

// ApplyGain multiplies every sample by gain in place, independently per
// channel. No clamping happens here; quantization clamps at encode time.
// Negative and >1 gains are allowed.
func ApplyGain(buf [][]float32, gain float32) {
	for _, ch := range buf {
		for i := range ch {
			ch[i] *= gain
		}
	}
}

// Stage processes one buffer in place. Stages keep per-channel state
// across buffers, so one stage instance serves exactly one session.
type Stage interface {
	Name() string
	Process(buf [][]float32)
}

// Chain applies its stages to each buffer in a fixed order. An empty
// chain is a bypass.
type Chain struct {
	stages []Stage
}

// NewChain builds the processing chain for one session. Stage order is
// fixed: gain, high-pass, low-pass, compressor, limiter, pseudo-stereo.
// A disabled chain or disabled stage contributes nothing. Pseudo-stereo
// only applies to two-channel sessions.
func NewChain(o options.DSPOptions, sampleRate, channels int) *Chain {
	if !o.Enabled {
		return &Chain{}
	}

	var stages []Stage
	if o.Gain.Enabled {
		stages = append(stages, NewGainStage(float32(o.Gain.Gain)))
	}
	if o.HighPass.Enabled {
		stages = append(stages, NewHighPass(o.HighPass.Cutoff, sampleRate, channels))
	}
	if o.LowPass.Enabled {
		stages = append(stages, NewLowPass(o.LowPass.Cutoff, sampleRate, channels))
	}
	if o.Compressor.Enabled {
		stages = append(stages, NewCompressor(o.Compressor, sampleRate, channels))
	}
	if o.Limiter.Enabled {
		stages = append(stages, NewLimiter(o.Limiter.Threshold))
	}
	if o.PseudoStereo.Enabled && channels == 2 {
		stages = append(stages, NewPseudoStereo(o.PseudoStereo.Delay, sampleRate))
	}
	return &Chain{stages: stages}
}

// Process runs the buffer through every stage in order.
func (c *Chain) Process(buf [][]float32) {
	for _, s := range c.stages {
		s.Process(buf)
	}
}

// Len returns the number of active stages.
func (c *Chain) Len() int { return len(c.stages) }

// Names lists the active stages in processing order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return names
}
