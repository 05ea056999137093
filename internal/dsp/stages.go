package dsp

import (
	"math"

	"github.com/audiolibrelab/voicecapture/internal/options"
)

// dbToLinear converts a dBFS value to a linear amplitude.
func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

type gainStage struct {
	gain float32
}

// NewGainStage returns the chain-internal gain stage, independent of the
// live session gain.
func NewGainStage(gain float32) Stage {
	return &gainStage{gain: gain}
}

func (s *gainStage) Name() string { return "gain" }

func (s *gainStage) Process(buf [][]float32) {
	ApplyGain(buf, s.gain)
}

// highPass is a one-pole RC high-pass filter with per-channel state.
type highPass struct {
	alpha   float32
	prevIn  []float32
	prevOut []float32
}

// NewHighPass returns a high-pass stage with the given cutoff in Hz.
func NewHighPass(cutoff float64, sampleRate, channels int) Stage {
	rc := 1.0 / (2 * math.Pi * cutoff)
	dt := 1.0 / float64(sampleRate)
	return &highPass{
		alpha:   float32(rc / (rc + dt)),
		prevIn:  make([]float32, channels),
		prevOut: make([]float32, channels),
	}
}

func (s *highPass) Name() string { return "highpass" }

func (s *highPass) Process(buf [][]float32) {
	for ch := range buf {
		pi, po := s.prevIn[ch], s.prevOut[ch]
		for i, x := range buf[ch] {
			y := s.alpha * (po + x - pi)
			pi, po = x, y
			buf[ch][i] = y
		}
		s.prevIn[ch], s.prevOut[ch] = pi, po
	}
}

// lowPass is a one-pole RC low-pass filter with per-channel state.
type lowPass struct {
	alpha   float32
	prevOut []float32
}

// NewLowPass returns a low-pass stage with the given cutoff in Hz.
func NewLowPass(cutoff float64, sampleRate, channels int) Stage {
	rc := 1.0 / (2 * math.Pi * cutoff)
	dt := 1.0 / float64(sampleRate)
	return &lowPass{
		alpha:   float32(dt / (rc + dt)),
		prevOut: make([]float32, channels),
	}
}

func (s *lowPass) Name() string { return "lowpass" }

func (s *lowPass) Process(buf [][]float32) {
	for ch := range buf {
		po := s.prevOut[ch]
		for i, x := range buf[ch] {
			po += s.alpha * (x - po)
			buf[ch][i] = po
		}
		s.prevOut[ch] = po
	}
}

// compressor applies downward compression above a threshold, driven by a
// per-channel envelope follower.
type compressor struct {
	threshold float32 // linear
	exponent  float64 // 1/ratio - 1, applied to the overshoot
	attack    float32 // per-sample smoothing coefficients
	release   float32
	env       []float32
}

// NewCompressor returns a compressor stage. Threshold is in dBFS, attack
// and release in milliseconds.
func NewCompressor(o options.CompressorOptions, sampleRate, channels int) Stage {
	ratio := o.Ratio
	if ratio < 1 {
		ratio = 1
	}
	return &compressor{
		threshold: float32(dbToLinear(o.Threshold)),
		exponent:  1/ratio - 1,
		attack:    timeCoefficient(o.Attack, sampleRate),
		release:   timeCoefficient(o.Release, sampleRate),
		env:       make([]float32, channels),
	}
}

// timeCoefficient converts a time constant in milliseconds to a
// per-sample one-pole smoothing coefficient.
func timeCoefficient(ms float64, sampleRate int) float32 {
	if ms <= 0 {
		return 0
	}
	return float32(math.Exp(-1 / (ms / 1000 * float64(sampleRate))))
}

func (s *compressor) Name() string { return "compressor" }

func (s *compressor) Process(buf [][]float32) {
	for ch := range buf {
		env := s.env[ch]
		for i, x := range buf[ch] {
			a := x
			if a < 0 {
				a = -a
			}
			if a > env {
				env = s.attack*env + (1-s.attack)*a
			} else {
				env = s.release*env + (1-s.release)*a
			}
			if env > s.threshold {
				over := float64(env / s.threshold)
				buf[ch][i] = x * float32(math.Pow(over, s.exponent))
			}
		}
		s.env[ch] = env
	}
}

// limiter hard-clamps samples to a linear ceiling.
type limiter struct {
	limit float32
}

// NewLimiter returns a brickwall limiter. Threshold is in dBFS.
func NewLimiter(thresholdDB float64) Stage {
	return &limiter{limit: float32(dbToLinear(thresholdDB))}
}

func (s *limiter) Name() string { return "limiter" }

func (s *limiter) Process(buf [][]float32) {
	for ch := range buf {
		for i, x := range buf[ch] {
			if x > s.limit {
				buf[ch][i] = s.limit
			} else if x < -s.limit {
				buf[ch][i] = -s.limit
			}
		}
	}
}

// pseudoStereo widens a two-channel signal by delaying the right channel
// a few milliseconds behind the left.
type pseudoStereo struct {
	ring []float32
	pos  int
}

// NewPseudoStereo returns the widening stage. Delay is in milliseconds.
func NewPseudoStereo(delayMs float64, sampleRate int) Stage {
	n := int(delayMs / 1000 * float64(sampleRate))
	if n < 1 {
		n = 1
	}
	return &pseudoStereo{ring: make([]float32, n)}
}

func (s *pseudoStereo) Name() string { return "pseudostereo" }

func (s *pseudoStereo) Process(buf [][]float32) {
	if len(buf) != 2 {
		return
	}
	right := buf[1]
	for i, x := range right {
		delayed := s.ring[s.pos]
		s.ring[s.pos] = x
		right[i] = delayed
		s.pos++
		if s.pos == len(s.ring) {
			s.pos = 0
		}
	}
}
