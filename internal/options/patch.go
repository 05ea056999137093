package options

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mitchellh/mapstructure"
)

// Patch mirrors Options with pointer fields so absent keys can be told
// apart from zero values. A nil field means "leave the base value alone".
type Patch struct {
	Input       *InputPatch       `json:"input,omitempty" yaml:"input,omitempty" mapstructure:"input"`
	Output      *OutputPatch      `json:"output,omitempty" yaml:"output,omitempty" mapstructure:"output"`
	Gain        *float64          `json:"gain,omitempty" yaml:"gain,omitempty" mapstructure:"gain"`
	Calibration *CalibrationPatch `json:"calibration,omitempty" yaml:"calibration,omitempty" mapstructure:"calibration"`
	Detection   *DetectionPatch   `json:"detection,omitempty" yaml:"detection,omitempty" mapstructure:"detection"`
	DSP         *DSPPatch         `json:"dsp,omitempty" yaml:"dsp,omitempty" mapstructure:"dsp"`
}

type InputPatch struct {
	SampleRate       *int  `json:"sampleRate,omitempty" yaml:"sampleRate,omitempty" mapstructure:"sampleRate"`
	SampleSize       *int  `json:"sampleSize,omitempty" yaml:"sampleSize,omitempty" mapstructure:"sampleSize"`
	ChannelCount     *int  `json:"channelCount,omitempty" yaml:"channelCount,omitempty" mapstructure:"channelCount"`
	AutoGainControl  *bool `json:"autoGainControl,omitempty" yaml:"autoGainControl,omitempty" mapstructure:"autoGainControl"`
	EchoCancellation *bool `json:"echoCancellation,omitempty" yaml:"echoCancellation,omitempty" mapstructure:"echoCancellation"`
	NoiseSuppression *bool `json:"noiseSuppression,omitempty" yaml:"noiseSuppression,omitempty" mapstructure:"noiseSuppression"`
}

type OutputPatch struct {
	ReturnBase64 *bool   `json:"returnBase64,omitempty" yaml:"returnBase64,omitempty" mapstructure:"returnBase64"`
	Format       *string `json:"format,omitempty" yaml:"format,omitempty" mapstructure:"format"`
	MaxDuration  *int    `json:"maxDuration,omitempty" yaml:"maxDuration,omitempty" mapstructure:"maxDuration"`
	Directory    *string `json:"directory,omitempty" yaml:"directory,omitempty" mapstructure:"directory"`
}

type CalibrationPatch struct {
	Enabled  *bool `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`
	Duration *int  `json:"duration,omitempty" yaml:"duration,omitempty" mapstructure:"duration"`
}

type DetectionPatch struct {
	StartThreshold     *float64 `json:"startThreshold,omitempty" yaml:"startThreshold,omitempty" mapstructure:"startThreshold"`
	StopThreshold      *float64 `json:"stopThreshold,omitempty" yaml:"stopThreshold,omitempty" mapstructure:"stopThreshold"`
	StartDuration      *int     `json:"startDuration,omitempty" yaml:"startDuration,omitempty" mapstructure:"startDuration"`
	StopDuration       *int     `json:"stopDuration,omitempty" yaml:"stopDuration,omitempty" mapstructure:"stopDuration"`
	MaxSilenceDuration *int     `json:"maxSilenceDuration,omitempty" yaml:"maxSilenceDuration,omitempty" mapstructure:"maxSilenceDuration"`
}

type DSPPatch struct {
	Enabled      *bool              `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`
	Gain         *GainStagePatch    `json:"gain,omitempty" yaml:"gain,omitempty" mapstructure:"gain"`
	HighPass     *FilterPatch       `json:"highPass,omitempty" yaml:"highPass,omitempty" mapstructure:"highPass"`
	LowPass      *FilterPatch       `json:"lowPass,omitempty" yaml:"lowPass,omitempty" mapstructure:"lowPass"`
	Compressor   *CompressorPatch   `json:"compressor,omitempty" yaml:"compressor,omitempty" mapstructure:"compressor"`
	Limiter      *LimiterPatch      `json:"limiter,omitempty" yaml:"limiter,omitempty" mapstructure:"limiter"`
	PseudoStereo *PseudoStereoPatch `json:"pseudoStereo,omitempty" yaml:"pseudoStereo,omitempty" mapstructure:"pseudoStereo"`
}

type GainStagePatch struct {
	Enabled *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`
	Gain    *float64 `json:"gain,omitempty" yaml:"gain,omitempty" mapstructure:"gain"`
}

type FilterPatch struct {
	Enabled *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`
	Cutoff  *float64 `json:"cutoff,omitempty" yaml:"cutoff,omitempty" mapstructure:"cutoff"`
}

type CompressorPatch struct {
	Enabled   *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty" mapstructure:"threshold"`
	Ratio     *float64 `json:"ratio,omitempty" yaml:"ratio,omitempty" mapstructure:"ratio"`
	Attack    *float64 `json:"attack,omitempty" yaml:"attack,omitempty" mapstructure:"attack"`
	Release   *float64 `json:"release,omitempty" yaml:"release,omitempty" mapstructure:"release"`
}

type LimiterPatch struct {
	Enabled   *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty" mapstructure:"threshold"`
}

type PseudoStereoPatch struct {
	Enabled *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty" mapstructure:"enabled"`
	Delay   *float64 `json:"delay,omitempty" yaml:"delay,omitempty" mapstructure:"delay"`
}

// PatchFromJSON decodes a JSON options patch. Keys the schema does not
// know are ignored and logged rather than rejected, so callers built
// against a newer schema keep working. A payload that cannot be decoded
// at all is returned as an error; callers fall back to their last good
// configuration.
func PatchFromJSON(data []byte) (Patch, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Patch{}, fmt.Errorf("parsing options patch: %w", err)
	}
	return PatchFromMap(raw)
}

// PatchFromMap decodes an already-parsed key/value tree (JSON object,
// viper settings) into a typed patch.
func PatchFromMap(raw map[string]interface{}) (Patch, error) {
	var patch Patch
	var md mapstructure.Metadata

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &patch,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Patch{}, fmt.Errorf("building options decoder: %w", err)
	}

	if err := dec.Decode(raw); err != nil {
		return Patch{}, fmt.Errorf("decoding options patch: %w", err)
	}

	for _, key := range md.Unused {
		slog.Warn("Ignoring unknown options key", "key", key)
	}

	return patch, nil
}

// FromJSON decodes a complete options document. A malformed payload falls
// back to the built-in defaults: a broken configuration must never leave
// the recorder without a working options set.
func FromJSON(data []byte) Options {
	patch, err := PatchFromJSON(data)
	if err != nil {
		slog.Warn("Malformed options document, falling back to defaults", "error", err)
		return Defaults()
	}
	return Merge(Defaults(), patch)
}
