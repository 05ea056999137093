package cmd

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicecapture/internal/capture"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available capture devices",
	Long: `List the capture devices every available backend reports, together
with the sample rates and channel counts the backend supports.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := []string{backendName}
		if backendName == "" || backendName == capture.BackendAuto {
			names = capture.Names()
		}
		return listDevices(names)
	},
}

func listDevices(names []string) error {
	fmt.Printf("🎤 Capture Devices (%s)\n", runtime.GOOS)
	fmt.Printf("═══════════════════════════════════════\n\n")

	listed := 0
	for _, name := range names {
		// The file backend replays recordings; it has nothing to list.
		if name == capture.BackendFile {
			continue
		}

		backend, err := capture.New(name)
		if err != nil {
			return err
		}
		caps, err := backend.Capabilities()
		if err != nil {
			slog.Warn("Backend unavailable", "backend", name, "error", err)
			continue
		}

		fmt.Printf("📋 %s (%d devices):\n", strings.ToUpper(caps.Backend), len(caps.Devices))
		for i, dev := range caps.Devices {
			marker := " "
			if dev.Default {
				marker = "*"
			}
			fmt.Printf("  %s %d. %s\n", marker, i+1, dev.Name)
		}
		fmt.Printf("    rates %d-%d Hz, sample sizes %v, up to %d channels\n\n",
			caps.MinSampleRate, caps.MaxSampleRate, caps.SampleSizes, caps.MaxChannels)
		listed++
	}

	if listed == 0 {
		return fmt.Errorf("no capture backend is available on this system")
	}

	fmt.Printf("💡 Usage:\n")
	fmt.Printf("  • voicecapture record --device \"<name>\"\n")
	fmt.Printf("  • voicecapture record --backend portaudio\n")
	fmt.Printf("  • * marks the system default device\n\n")

	return nil
}
