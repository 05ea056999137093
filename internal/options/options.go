package options

import (
	"os"
	"path/filepath"
	"strings"
)

// Options is the full recorder configuration tree. Every field has a
// built-in default, so a zero patch always yields a usable configuration.
// The same camelCase keys are used for JSON payloads, the YAML options
// file and viper decoding.
type Options struct {
	Input       InputOptions       `json:"input" yaml:"input" mapstructure:"input"`
	Output      OutputOptions      `json:"output" yaml:"output" mapstructure:"output"`
	Gain        float64            `json:"gain" yaml:"gain" mapstructure:"gain"`
	Calibration CalibrationOptions `json:"calibration" yaml:"calibration" mapstructure:"calibration"`
	Detection   DetectionOptions   `json:"detection" yaml:"detection" mapstructure:"detection"`
	DSP         DSPOptions         `json:"dsp" yaml:"dsp" mapstructure:"dsp"`
}

// InputOptions describes the capture side of a session. The three
// processing hints are best-effort and forwarded to the backend as-is.
type InputOptions struct {
	SampleRate       int  `json:"sampleRate" yaml:"sampleRate" mapstructure:"sampleRate"`
	SampleSize       int  `json:"sampleSize" yaml:"sampleSize" mapstructure:"sampleSize"`
	ChannelCount     int  `json:"channelCount" yaml:"channelCount" mapstructure:"channelCount"`
	AutoGainControl  bool `json:"autoGainControl" yaml:"autoGainControl" mapstructure:"autoGainControl"`
	EchoCancellation bool `json:"echoCancellation" yaml:"echoCancellation" mapstructure:"echoCancellation"`
	NoiseSuppression bool `json:"noiseSuppression" yaml:"noiseSuppression" mapstructure:"noiseSuppression"`
}

// OutputOptions describes the produced file. MaxDuration is in
// milliseconds; zero means unbounded.
type OutputOptions struct {
	ReturnBase64 bool   `json:"returnBase64" yaml:"returnBase64" mapstructure:"returnBase64"`
	Format       string `json:"format" yaml:"format" mapstructure:"format"`
	MaxDuration  int    `json:"maxDuration" yaml:"maxDuration" mapstructure:"maxDuration"`
	Directory    string `json:"directory" yaml:"directory" mapstructure:"directory"`
}

// CalibrationOptions is a reserved hook for a pre-roll calibration pass.
// The values are carried and persisted but not acted on yet.
type CalibrationOptions struct {
	Enabled  bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Duration int  `json:"duration" yaml:"duration" mapstructure:"duration"`
}

// DetectionOptions is a reserved hook for voice-activity start/stop.
// Thresholds are in dBFS, durations in milliseconds. Carriage only.
type DetectionOptions struct {
	StartThreshold     float64 `json:"startThreshold" yaml:"startThreshold" mapstructure:"startThreshold"`
	StopThreshold      float64 `json:"stopThreshold" yaml:"stopThreshold" mapstructure:"stopThreshold"`
	StartDuration      int     `json:"startDuration" yaml:"startDuration" mapstructure:"startDuration"`
	StopDuration       int     `json:"stopDuration" yaml:"stopDuration" mapstructure:"stopDuration"`
	MaxSilenceDuration int     `json:"maxSilenceDuration" yaml:"maxSilenceDuration" mapstructure:"maxSilenceDuration"`
}

// DSPOptions gates the optional processing chain. Each stage carries its
// own enabled flag; the whole chain is bypassed unless Enabled is set.
type DSPOptions struct {
	Enabled      bool                `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Gain         GainStageOptions    `json:"gain" yaml:"gain" mapstructure:"gain"`
	HighPass     FilterOptions       `json:"highPass" yaml:"highPass" mapstructure:"highPass"`
	LowPass      FilterOptions       `json:"lowPass" yaml:"lowPass" mapstructure:"lowPass"`
	Compressor   CompressorOptions   `json:"compressor" yaml:"compressor" mapstructure:"compressor"`
	Limiter      LimiterOptions      `json:"limiter" yaml:"limiter" mapstructure:"limiter"`
	PseudoStereo PseudoStereoOptions `json:"pseudoStereo" yaml:"pseudoStereo" mapstructure:"pseudoStereo"`
}

// GainStageOptions is the chain-internal gain stage, independent of the
// live top-level Gain value.
type GainStageOptions struct {
	Enabled bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Gain    float64 `json:"gain" yaml:"gain" mapstructure:"gain"`
}

// FilterOptions parameterizes the high-pass and low-pass stages.
// Cutoff is in Hz.
type FilterOptions struct {
	Enabled bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Cutoff  float64 `json:"cutoff" yaml:"cutoff" mapstructure:"cutoff"`
}

// CompressorOptions parameterizes the compressor stage. Threshold is in
// dBFS, attack and release in milliseconds.
type CompressorOptions struct {
	Enabled   bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Threshold float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`
	Ratio     float64 `json:"ratio" yaml:"ratio" mapstructure:"ratio"`
	Attack    float64 `json:"attack" yaml:"attack" mapstructure:"attack"`
	Release   float64 `json:"release" yaml:"release" mapstructure:"release"`
}

// LimiterOptions parameterizes the limiter stage. Threshold is in dBFS.
type LimiterOptions struct {
	Enabled   bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Threshold float64 `json:"threshold" yaml:"threshold" mapstructure:"threshold"`
}

// PseudoStereoOptions parameterizes the pseudo-stereo stage. Delay is in
// milliseconds.
type PseudoStereoOptions struct {
	Enabled bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Delay   float64 `json:"delay" yaml:"delay" mapstructure:"delay"`
}

// Output formats understood by the encoder.
const (
	FormatWAV = "wav"
	FormatMP3 = "mp3"
)

// Defaults returns the built-in configuration. Every recording session
// starts from these values before persisted options and per-call
// overrides are merged in.
func Defaults() Options {
	return Options{
		Input: InputOptions{
			SampleRate:       44100,
			SampleSize:       16,
			ChannelCount:     1,
			AutoGainControl:  true,
			EchoCancellation: true,
			NoiseSuppression: true,
		},
		Output: OutputOptions{
			ReturnBase64: false,
			Format:       FormatWAV,
			MaxDuration:  0,
			// Resolved through ExpandPath wherever the directory is used.
			Directory: "~/Audio/VoiceCapture",
		},
		Gain: 1.0,
		Calibration: CalibrationOptions{
			Enabled:  false,
			Duration: 1000,
		},
		Detection: DetectionOptions{
			StartThreshold:     -45.0,
			StopThreshold:      -45.0,
			StartDuration:      300,
			StopDuration:       800,
			MaxSilenceDuration: 5000,
		},
		DSP: DSPOptions{
			Enabled:      false,
			Gain:         GainStageOptions{Enabled: false, Gain: 1.0},
			HighPass:     FilterOptions{Enabled: false, Cutoff: 80},
			LowPass:      FilterOptions{Enabled: false, Cutoff: 8000},
			Compressor:   CompressorOptions{Enabled: false, Threshold: -24, Ratio: 3, Attack: 20, Release: 250},
			Limiter:      LimiterOptions{Enabled: false, Threshold: -3},
			PseudoStereo: PseudoStereoOptions{Enabled: false, Delay: 20},
		},
	}
}

// ExpandPath resolves a leading "~" against the user's home directory.
// Paths that do not start with "~" are returned unchanged, as is
// everything when the home directory cannot be determined.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// Merge applies a patch on top of a base configuration and returns the
// result. The merge is recursive per key: absent (nil) patch fields leave
// the base value untouched, present scalars overwrite. Neither input is
// mutated, so the result of one merge is always a valid base for the next.
func Merge(base Options, patch Patch) Options {
	out := base

	if patch.Input != nil {
		mergeInput(&out.Input, patch.Input)
	}
	if patch.Output != nil {
		mergeOutput(&out.Output, patch.Output)
	}
	if patch.Gain != nil {
		out.Gain = *patch.Gain
	}
	if patch.Calibration != nil {
		mergeCalibration(&out.Calibration, patch.Calibration)
	}
	if patch.Detection != nil {
		mergeDetection(&out.Detection, patch.Detection)
	}
	if patch.DSP != nil {
		mergeDSP(&out.DSP, patch.DSP)
	}

	return out
}

func mergeInput(dst *InputOptions, p *InputPatch) {
	if p.SampleRate != nil {
		dst.SampleRate = *p.SampleRate
	}
	if p.SampleSize != nil {
		dst.SampleSize = *p.SampleSize
	}
	if p.ChannelCount != nil {
		dst.ChannelCount = *p.ChannelCount
	}
	if p.AutoGainControl != nil {
		dst.AutoGainControl = *p.AutoGainControl
	}
	if p.EchoCancellation != nil {
		dst.EchoCancellation = *p.EchoCancellation
	}
	if p.NoiseSuppression != nil {
		dst.NoiseSuppression = *p.NoiseSuppression
	}
}

func mergeOutput(dst *OutputOptions, p *OutputPatch) {
	if p.ReturnBase64 != nil {
		dst.ReturnBase64 = *p.ReturnBase64
	}
	if p.Format != nil {
		dst.Format = *p.Format
	}
	if p.MaxDuration != nil {
		dst.MaxDuration = *p.MaxDuration
	}
	if p.Directory != nil {
		dst.Directory = *p.Directory
	}
}

func mergeCalibration(dst *CalibrationOptions, p *CalibrationPatch) {
	if p.Enabled != nil {
		dst.Enabled = *p.Enabled
	}
	if p.Duration != nil {
		dst.Duration = *p.Duration
	}
}

func mergeDetection(dst *DetectionOptions, p *DetectionPatch) {
	if p.StartThreshold != nil {
		dst.StartThreshold = *p.StartThreshold
	}
	if p.StopThreshold != nil {
		dst.StopThreshold = *p.StopThreshold
	}
	if p.StartDuration != nil {
		dst.StartDuration = *p.StartDuration
	}
	if p.StopDuration != nil {
		dst.StopDuration = *p.StopDuration
	}
	if p.MaxSilenceDuration != nil {
		dst.MaxSilenceDuration = *p.MaxSilenceDuration
	}
}

func mergeDSP(dst *DSPOptions, p *DSPPatch) {
	if p.Enabled != nil {
		dst.Enabled = *p.Enabled
	}
	if p.Gain != nil {
		if p.Gain.Enabled != nil {
			dst.Gain.Enabled = *p.Gain.Enabled
		}
		if p.Gain.Gain != nil {
			dst.Gain.Gain = *p.Gain.Gain
		}
	}
	if p.HighPass != nil {
		mergeFilter(&dst.HighPass, p.HighPass)
	}
	if p.LowPass != nil {
		mergeFilter(&dst.LowPass, p.LowPass)
	}
	if p.Compressor != nil {
		mergeCompressor(&dst.Compressor, p.Compressor)
	}
	if p.Limiter != nil {
		if p.Limiter.Enabled != nil {
			dst.Limiter.Enabled = *p.Limiter.Enabled
		}
		if p.Limiter.Threshold != nil {
			dst.Limiter.Threshold = *p.Limiter.Threshold
		}
	}
	if p.PseudoStereo != nil {
		if p.PseudoStereo.Enabled != nil {
			dst.PseudoStereo.Enabled = *p.PseudoStereo.Enabled
		}
		if p.PseudoStereo.Delay != nil {
			dst.PseudoStereo.Delay = *p.PseudoStereo.Delay
		}
	}
}

func mergeFilter(dst *FilterOptions, p *FilterPatch) {
	if p.Enabled != nil {
		dst.Enabled = *p.Enabled
	}
	if p.Cutoff != nil {
		dst.Cutoff = *p.Cutoff
	}
}

func mergeCompressor(dst *CompressorOptions, p *CompressorPatch) {
	if p.Enabled != nil {
		dst.Enabled = *p.Enabled
	}
	if p.Threshold != nil {
		dst.Threshold = *p.Threshold
	}
	if p.Ratio != nil {
		dst.Ratio = *p.Ratio
	}
	if p.Attack != nil {
		dst.Attack = *p.Attack
	}
	if p.Release != nil {
		dst.Release = *p.Release
	}
}
