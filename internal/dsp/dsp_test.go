package dsp

import (
	"math"
	"testing"

	"github.com/audiolibrelab/voicecapture/internal/options"
)

func constantBuffer(channels, frames int, value float32) [][]float32 {
	buf := make([][]float32, channels)
	for ch := range buf {
		buf[ch] = make([]float32, frames)
		for i := range buf[ch] {
			buf[ch][i] = value
		}
	}
	return buf
}

func TestApplyGainUnity(t *testing.T) {
	buf := [][]float32{{0.1, -0.5, 0.999}, {0.25, -0.25, 0}}
	expected := [][]float32{{0.1, -0.5, 0.999}, {0.25, -0.25, 0}}

	ApplyGain(buf, 1.0)

	for ch := range expected {
		for i := range expected[ch] {
			if buf[ch][i] != expected[ch][i] {
				t.Errorf("Unity gain changed sample [%d][%d]: %f", ch, i, buf[ch][i])
			}
		}
	}
}

func TestApplyGainScales(t *testing.T) {
	buf := [][]float32{{0.1, 0.8}}
	ApplyGain(buf, 2.0)

	if buf[0][0] != 0.2 {
		t.Errorf("Expected 0.2, got %f", buf[0][0])
	}
	// No clamping at this stage; values above 1.0 pass through.
	if buf[0][1] != 1.6 {
		t.Errorf("Expected 1.6 unclamped, got %f", buf[0][1])
	}
}

func TestApplyGainNegativeAndZero(t *testing.T) {
	buf := [][]float32{{0.5, -0.5}}
	ApplyGain(buf, -1.0)
	if buf[0][0] != -0.5 || buf[0][1] != 0.5 {
		t.Errorf("Negative gain should invert: %v", buf[0])
	}

	ApplyGain(buf, 0)
	if buf[0][0] != 0 || buf[0][1] != 0 {
		t.Errorf("Zero gain should mute: %v", buf[0])
	}
}

func TestChainBypassWhenDisabled(t *testing.T) {
	o := options.Defaults().DSP
	o.Enabled = false
	o.Gain.Enabled = true
	o.Limiter.Enabled = true

	chain := NewChain(o, 44100, 1)
	if chain.Len() != 0 {
		t.Fatalf("Expected empty chain when DSP disabled, got %d stages", chain.Len())
	}

	buf := [][]float32{{0.5}}
	chain.Process(buf)
	if buf[0][0] != 0.5 {
		t.Errorf("Bypass chain changed samples: %f", buf[0][0])
	}
}

func TestChainStageSelection(t *testing.T) {
	o := options.Defaults().DSP
	o.Enabled = true
	o.HighPass.Enabled = true
	o.Limiter.Enabled = true

	chain := NewChain(o, 44100, 1)
	names := chain.Names()
	if len(names) != 2 || names[0] != "highpass" || names[1] != "limiter" {
		t.Errorf("Expected [highpass limiter], got %v", names)
	}

	// Pseudo-stereo never joins a mono chain.
	o.PseudoStereo.Enabled = true
	if got := NewChain(o, 44100, 1).Len(); got != 2 {
		t.Errorf("Expected pseudo-stereo skipped for mono, got %d stages", got)
	}
	if got := NewChain(o, 44100, 2).Len(); got != 3 {
		t.Errorf("Expected pseudo-stereo active for stereo, got %d stages", got)
	}
}

func TestChainOrderGainBeforeLimiter(t *testing.T) {
	o := options.Defaults().DSP
	o.Enabled = true
	o.Gain.Enabled = true
	o.Gain.Gain = 2.0
	o.Limiter.Enabled = true
	o.Limiter.Threshold = 0 // 0 dBFS = 1.0 linear

	chain := NewChain(o, 44100, 1)
	buf := [][]float32{{0.75}}
	chain.Process(buf)

	// Gain runs first (0.75 -> 1.5), then the limiter clamps to 1.0.
	// The reverse order would leave 1.5.
	if buf[0][0] != 1.0 {
		t.Errorf("Expected 1.0 (gain before limiter), got %f", buf[0][0])
	}
}

func TestHighPassRemovesDC(t *testing.T) {
	stage := NewHighPass(80, 44100, 1)
	buf := constantBuffer(1, 4096, 1.0)

	stage.Process(buf)

	last := buf[0][len(buf[0])-1]
	if math.Abs(float64(last)) > 0.01 {
		t.Errorf("Expected DC offset removed, final sample %f", last)
	}
}

func TestLowPassPassesDC(t *testing.T) {
	stage := NewLowPass(8000, 44100, 1)
	buf := constantBuffer(1, 1024, 1.0)

	stage.Process(buf)

	last := buf[0][len(buf[0])-1]
	if last < 0.99 {
		t.Errorf("Expected DC to pass a low-pass, final sample %f", last)
	}
}

func TestFilterStateSpansBuffers(t *testing.T) {
	// Two half-size buffers must produce the same tail as one full buffer.
	full := NewLowPass(1000, 44100, 1)
	split := NewLowPass(1000, 44100, 1)

	one := constantBuffer(1, 512, 0.7)
	full.Process(one)

	a := constantBuffer(1, 256, 0.7)
	b := constantBuffer(1, 256, 0.7)
	split.Process(a)
	split.Process(b)

	if one[0][511] != b[0][255] {
		t.Errorf("Filter state not carried across buffers: %f vs %f", one[0][511], b[0][255])
	}
}

func TestLimiterClamps(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected float32
	}{
		{name: "above ceiling", input: 1.5, expected: 1.0},
		{name: "below floor", input: -1.5, expected: -1.0},
		{name: "in range", input: 0.5, expected: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := NewLimiter(0)
			buf := [][]float32{{tt.input}}
			stage.Process(buf)
			if buf[0][0] != tt.expected {
				t.Errorf("Expected %f, got %f", tt.expected, buf[0][0])
			}
		})
	}
}

func TestPseudoStereoDelaysRight(t *testing.T) {
	// 1ms at 8000Hz is an 8 sample delay.
	stage := NewPseudoStereo(1.0, 8000)

	buf := constantBuffer(2, 16, 0)
	buf[0][0] = 1.0
	buf[1][0] = 1.0
	stage.Process(buf)

	if buf[0][0] != 1.0 {
		t.Errorf("Left channel should be untouched, got %f", buf[0][0])
	}
	if buf[1][0] != 0 {
		t.Errorf("Right impulse should be delayed away from index 0, got %f", buf[1][0])
	}
	if buf[1][8] != 1.0 {
		t.Errorf("Expected right impulse at index 8, got %f", buf[1][8])
	}

	// Mono buffers pass through unchanged.
	mono := [][]float32{{0.3, 0.4}}
	stage.Process(mono)
	if mono[0][0] != 0.3 || mono[0][1] != 0.4 {
		t.Errorf("Mono buffer should be untouched: %v", mono[0])
	}
}

func TestCompressorReducesLoudPassesQuiet(t *testing.T) {
	opts := options.CompressorOptions{
		Enabled:   true,
		Threshold: -20, // 0.1 linear
		Ratio:     4,
		Attack:    20,
		Release:   250,
	}

	loud := NewCompressor(opts, 44100, 1)
	buf := constantBuffer(1, 8820, 0.5) // 200ms, well past attack
	loud.Process(buf)
	last := buf[0][len(buf[0])-1]
	if last >= 0.4 {
		t.Errorf("Expected loud signal reduced below 0.4, got %f", last)
	}
	if last <= 0.05 {
		t.Errorf("Expected compression, not silence, got %f", last)
	}

	quiet := NewCompressor(opts, 44100, 1)
	qbuf := constantBuffer(1, 1024, 0.05)
	quiet.Process(qbuf)
	for i, s := range qbuf[0] {
		if s != 0.05 {
			t.Fatalf("Below-threshold sample %d changed: %f", i, s)
		}
	}
}
