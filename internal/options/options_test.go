package options

import (
	"reflect"
	"testing"
)

func intPtr(v int) *int         { return &v }
func f64Ptr(v float64) *float64 { return &v }
func strPtr(v string) *string   { return &v }
func boolPtr(v bool) *bool      { return &v }

func TestDefaults(t *testing.T) {
	d := Defaults()

	if d.Input.SampleRate != 44100 {
		t.Errorf("Expected default sample rate 44100, got %d", d.Input.SampleRate)
	}
	if d.Input.SampleSize != 16 {
		t.Errorf("Expected default sample size 16, got %d", d.Input.SampleSize)
	}
	if d.Input.ChannelCount != 1 {
		t.Errorf("Expected default channel count 1, got %d", d.Input.ChannelCount)
	}
	if d.Gain != 1.0 {
		t.Errorf("Expected default gain 1.0, got %f", d.Gain)
	}
	if d.Output.Format != FormatWAV {
		t.Errorf("Expected default format wav, got %s", d.Output.Format)
	}
	if d.Output.MaxDuration != 0 {
		t.Errorf("Expected unbounded max duration, got %d", d.Output.MaxDuration)
	}
	if d.DSP.Enabled {
		t.Error("Expected DSP disabled by default")
	}
}

func TestMergeEmptyPatchIsIdentity(t *testing.T) {
	base := Defaults()
	base.Input.SampleRate = 48000
	base.Gain = 2.5
	base.Output.Format = FormatMP3

	result := Merge(base, Patch{})

	if !reflect.DeepEqual(result, base) {
		t.Errorf("Merge with empty patch changed the base:\nbase:   %+v\nresult: %+v", base, result)
	}
}

func TestMergeDoesNotMutateBase(t *testing.T) {
	base := Defaults()
	snapshot := base

	patch := Patch{
		Input: &InputPatch{SampleRate: intPtr(96000), ChannelCount: intPtr(2)},
		Gain:  f64Ptr(3.0),
	}
	result := Merge(base, patch)

	if !reflect.DeepEqual(base, snapshot) {
		t.Errorf("Merge mutated its base input: %+v", base)
	}
	if result.Input.SampleRate != 96000 || result.Input.ChannelCount != 2 || result.Gain != 3.0 {
		t.Errorf("Merge did not apply patch: %+v", result)
	}
}

func TestMergeRecursion(t *testing.T) {
	base := Defaults()

	// Patching one nested field must leave its siblings intact.
	result := Merge(base, Patch{
		Input: &InputPatch{SampleRate: intPtr(48000)},
	})

	if result.Input.SampleRate != 48000 {
		t.Errorf("Expected sample rate 48000, got %d", result.Input.SampleRate)
	}
	if result.Input.ChannelCount != base.Input.ChannelCount {
		t.Errorf("Sibling channelCount changed: got %d", result.Input.ChannelCount)
	}
	if result.Input.SampleSize != base.Input.SampleSize {
		t.Errorf("Sibling sampleSize changed: got %d", result.Input.SampleSize)
	}
	if !result.Input.AutoGainControl {
		t.Error("Sibling autoGainControl changed")
	}

	// Two levels deep.
	result = Merge(base, Patch{
		DSP: &DSPPatch{HighPass: &FilterPatch{Cutoff: f64Ptr(120)}},
	})
	if result.DSP.HighPass.Cutoff != 120 {
		t.Errorf("Expected high-pass cutoff 120, got %f", result.DSP.HighPass.Cutoff)
	}
	if result.DSP.HighPass.Enabled != base.DSP.HighPass.Enabled {
		t.Error("Sibling highPass.enabled changed")
	}
	if !reflect.DeepEqual(result.DSP.LowPass, base.DSP.LowPass) {
		t.Errorf("Sibling lowPass changed: %+v", result.DSP.LowPass)
	}
}

func TestMergeChain(t *testing.T) {
	// The result of one merge must be a valid base for the next.
	first := Merge(Defaults(), Patch{Gain: f64Ptr(2.0)})
	second := Merge(first, Patch{Input: &InputPatch{SampleRate: intPtr(22050)}})

	if second.Gain != 2.0 {
		t.Errorf("Expected gain 2.0 preserved across merges, got %f", second.Gain)
	}
	if second.Input.SampleRate != 22050 {
		t.Errorf("Expected sample rate 22050, got %d", second.Input.SampleRate)
	}
}

func TestMergeExplicitZeroValues(t *testing.T) {
	// A present pointer overwrites even when it carries the zero value.
	base := Defaults()
	result := Merge(base, Patch{
		Gain:  f64Ptr(0),
		Input: &InputPatch{AutoGainControl: boolPtr(false)},
	})

	if result.Gain != 0 {
		t.Errorf("Expected gain 0, got %f", result.Gain)
	}
	if result.Input.AutoGainControl {
		t.Error("Expected autoGainControl false")
	}
}

func TestPatchFromJSON(t *testing.T) {
	data := []byte(`{
		"input": {"sampleRate": 48000, "channelCount": 2},
		"output": {"format": "mp3", "returnBase64": true},
		"gain": 2.5
	}`)

	patch, err := PatchFromJSON(data)
	if err != nil {
		t.Fatalf("PatchFromJSON failed: %v", err)
	}

	if patch.Input == nil || patch.Input.SampleRate == nil || *patch.Input.SampleRate != 48000 {
		t.Errorf("Input sampleRate not decoded: %+v", patch.Input)
	}
	if patch.Input.ChannelCount == nil || *patch.Input.ChannelCount != 2 {
		t.Errorf("Input channelCount not decoded: %+v", patch.Input)
	}
	if patch.Output == nil || patch.Output.Format == nil || *patch.Output.Format != "mp3" {
		t.Errorf("Output format not decoded: %+v", patch.Output)
	}
	if patch.Gain == nil || *patch.Gain != 2.5 {
		t.Errorf("Gain not decoded: %v", patch.Gain)
	}
	if patch.Detection != nil {
		t.Errorf("Expected untouched detection section to stay nil, got %+v", patch.Detection)
	}
	if patch.Input.SampleSize != nil {
		t.Errorf("Expected untouched sampleSize to stay nil, got %v", *patch.Input.SampleSize)
	}
}

func TestPatchFromJSONIgnoresUnknownKeys(t *testing.T) {
	data := []byte(`{"bogus": {"x": 1}, "input": {"sampleRate": 32000, "legacyField": true}}`)

	patch, err := PatchFromJSON(data)
	if err != nil {
		t.Fatalf("Expected unknown keys to be ignored, got error: %v", err)
	}
	if patch.Input == nil || patch.Input.SampleRate == nil || *patch.Input.SampleRate != 32000 {
		t.Errorf("Known key not decoded alongside unknown keys: %+v", patch.Input)
	}
}

func TestPatchFromJSONMalformed(t *testing.T) {
	if _, err := PatchFromJSON([]byte(`{"input": `)); err == nil {
		t.Error("Expected error for truncated JSON")
	}
	if _, err := PatchFromJSON([]byte(`[1,2,3]`)); err == nil {
		t.Error("Expected error for non-object JSON")
	}
}

func TestFromJSONMalformedFallsBackToDefaults(t *testing.T) {
	result := FromJSON([]byte(`not json at all`))
	if !reflect.DeepEqual(result, Defaults()) {
		t.Errorf("Expected defaults for malformed document, got %+v", result)
	}
}

func TestFromJSONAppliesOverDefaults(t *testing.T) {
	result := FromJSON([]byte(`{"gain": 4.0, "output": {"format": "mp3"}}`))

	if result.Gain != 4.0 {
		t.Errorf("Expected gain 4.0, got %f", result.Gain)
	}
	if result.Output.Format != FormatMP3 {
		t.Errorf("Expected format mp3, got %s", result.Output.Format)
	}
	if result.Input.SampleRate != 44100 {
		t.Errorf("Expected default sample rate preserved, got %d", result.Input.SampleRate)
	}
}
