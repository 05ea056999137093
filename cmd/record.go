package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicecapture/internal/audio"
	"github.com/audiolibrelab/voicecapture/internal/capture"
	"github.com/audiolibrelab/voicecapture/internal/options"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record from the microphone until interrupted",
	Long: `Record from the microphone until Ctrl+C or the configured maximum
duration. The finished file is written to the output directory and its
path, duration and size are printed when the recording completes.

Flags override the stored options for this recording only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := capture.New(backendName)
		if err != nil {
			return err
		}
		device, _ := cmd.Flags().GetString("device")

		rec := audio.New(audio.Config{Backend: backend, Store: store})
		events, cancel := rec.Subscribe()
		defer cancel()

		params := audio.StartParams{
			Device:    device,
			Overrides: recordOverrides(cmd),
		}
		if err := rec.Start(context.Background(), params); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		slog.Info("Recording started - press Ctrl+C to stop")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		for {
			select {
			case ev := <-events:
				switch ev.Type {
				case audio.EventDurationChanged:
					fmt.Printf("\rRecording... %s", formatMillis(ev.Duration))
				case audio.EventAudioURLReady:
					// The max-duration auto-stop finalized the recording.
					fmt.Println()
					printResult(*ev.Result)
					return nil
				case audio.EventError:
					fmt.Println()
					return fmt.Errorf("recording failed: %s", ev.Message)
				}
			case <-sigChan:
				fmt.Println()
				slog.Info("Stopping recording...")
				result, err := rec.Stop(context.Background())
				if err != nil {
					return fmt.Errorf("failed to stop recording: %w", err)
				}
				printResult(result)
				return nil
			}
		}
	},
}

func init() {
	recordCmd.Flags().Int("rate", 0, "sample rate in Hz (overrides options)")
	recordCmd.Flags().Int("channels", 0, "channel count: 1 or 2 (overrides options)")
	recordCmd.Flags().Float64("gain", 0, "input gain multiplier (overrides options)")
	recordCmd.Flags().String("format", "", "output format: wav or mp3 (overrides options)")
	recordCmd.Flags().Int("max-duration", 0, "maximum recording length in ms, 0 = unbounded (overrides options)")
	recordCmd.Flags().StringP("output", "o", "", "output directory (overrides options)")
	recordCmd.Flags().String("device", "", "capture device name or ID")
}

// recordOverrides builds a one-shot options patch from the flags the user
// actually set, so untouched flags never clobber stored values.
func recordOverrides(cmd *cobra.Command) options.Patch {
	var patch options.Patch

	input := &options.InputPatch{}
	if cmd.Flags().Changed("rate") {
		rate, _ := cmd.Flags().GetInt("rate")
		input.SampleRate = &rate
	}
	if cmd.Flags().Changed("channels") {
		channels, _ := cmd.Flags().GetInt("channels")
		input.ChannelCount = &channels
	}
	if input.SampleRate != nil || input.ChannelCount != nil {
		patch.Input = input
	}

	output := &options.OutputPatch{}
	if cmd.Flags().Changed("format") {
		format, _ := cmd.Flags().GetString("format")
		output.Format = &format
	}
	if cmd.Flags().Changed("max-duration") {
		maxDuration, _ := cmd.Flags().GetInt("max-duration")
		output.MaxDuration = &maxDuration
	}
	if cmd.Flags().Changed("output") {
		dir, _ := cmd.Flags().GetString("output")
		output.Directory = &dir
	}
	if output.Format != nil || output.MaxDuration != nil || output.Directory != nil {
		patch.Output = output
	}

	if cmd.Flags().Changed("gain") {
		gain, _ := cmd.Flags().GetFloat64("gain")
		patch.Gain = &gain
	}

	return patch
}

func printResult(result audio.Result) {
	fmt.Printf("Saved %s (%s, %s, %s)\n",
		result.URI, formatMillis(result.Duration), result.MIME, formatSize(result.Size))
}

// formatMillis renders an event duration as a short human time.
func formatMillis(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return d.Truncate(100 * time.Millisecond).String()
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
