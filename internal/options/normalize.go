package options

import (
	"log/slog"

	"github.com/audiolibrelab/voicecapture/internal/capture"
)

// Normalize clamps o into what the capture hardware can deliver and
// substitutes defaults for values no session could run with. Every
// substitution is logged so silent correction never surprises anyone.
// The input is not modified.
func Normalize(o Options, caps capture.Capabilities) Options {
	defaults := Defaults()

	minRate := caps.MinSampleRate
	if minRate <= 0 {
		minRate = 8000
	}
	maxRate := caps.MaxSampleRate
	if maxRate <= 0 {
		maxRate = 48000
	}

	if o.Input.SampleRate <= 0 {
		slog.Warn("Invalid sample rate, using default",
			"requested", o.Input.SampleRate, "using", defaults.Input.SampleRate)
		o.Input.SampleRate = defaults.Input.SampleRate
	}
	if o.Input.SampleRate < minRate {
		slog.Warn("Sample rate below device range",
			"requested", o.Input.SampleRate, "using", minRate)
		o.Input.SampleRate = minRate
	}
	if o.Input.SampleRate > maxRate {
		slog.Warn("Sample rate above device range",
			"requested", o.Input.SampleRate, "using", maxRate)
		o.Input.SampleRate = maxRate
	}

	sizes := caps.SampleSizes
	if len(sizes) == 0 {
		sizes = []int{16}
	}
	supported := false
	for _, s := range sizes {
		if o.Input.SampleSize == s {
			supported = true
			break
		}
	}
	if !supported {
		slog.Warn("Unsupported sample size",
			"requested", o.Input.SampleSize, "using", 16)
		o.Input.SampleSize = 16
	}

	maxChannels := caps.MaxChannels
	if maxChannels <= 0 {
		maxChannels = 2
	}
	if o.Input.ChannelCount < 1 {
		slog.Warn("Invalid channel count, using mono",
			"requested", o.Input.ChannelCount)
		o.Input.ChannelCount = 1
	}
	if o.Input.ChannelCount > maxChannels {
		slog.Warn("Channel count above device limit",
			"requested", o.Input.ChannelCount, "using", maxChannels)
		o.Input.ChannelCount = maxChannels
	}

	if o.Gain < 0 {
		slog.Warn("Negative gain, muting instead", "requested", o.Gain)
		o.Gain = 0
	}

	if o.Output.Format != FormatWAV && o.Output.Format != FormatMP3 {
		slog.Warn("Unknown output format, using wav", "requested", o.Output.Format)
		o.Output.Format = FormatWAV
	}
	if o.Output.MaxDuration < 0 {
		slog.Warn("Negative max duration, disabling limit", "requested", o.Output.MaxDuration)
		o.Output.MaxDuration = 0
	}
	if o.Output.Directory == "" {
		slog.Warn("Empty output directory, using default", "using", defaults.Output.Directory)
		o.Output.Directory = defaults.Output.Directory
	}

	if o.Calibration.Duration <= 0 {
		slog.Warn("Invalid calibration duration, using default",
			"requested", o.Calibration.Duration, "using", defaults.Calibration.Duration)
		o.Calibration.Duration = defaults.Calibration.Duration
	}
	if o.Detection.StartDuration < 0 {
		o.Detection.StartDuration = 0
	}
	if o.Detection.StopDuration < 0 {
		o.Detection.StopDuration = 0
	}
	if o.Detection.MaxSilenceDuration < 0 {
		o.Detection.MaxSilenceDuration = 0
	}

	if o.DSP.HighPass.Cutoff <= 0 {
		o.DSP.HighPass.Cutoff = defaults.DSP.HighPass.Cutoff
	}
	if o.DSP.LowPass.Cutoff <= 0 {
		o.DSP.LowPass.Cutoff = defaults.DSP.LowPass.Cutoff
	}
	if o.DSP.Compressor.Ratio < 1 {
		o.DSP.Compressor.Ratio = 1
	}
	if o.DSP.PseudoStereo.Delay < 0 {
		o.DSP.PseudoStereo.Delay = 0
	}

	return o
}
