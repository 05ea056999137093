package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicecapture/internal/audio"
	"github.com/audiolibrelab/voicecapture/internal/capture"
	"github.com/audiolibrelab/voicecapture/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the VoiceCapture web server to control recording via HTTP and
receive live events over a WebSocket. This allows you to drive recording
from your smartphone or any device on the same network.

The server will display the local network URL for easy access from
mobile devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		backend, err := capture.New(backendName)
		if err != nil {
			return err
		}
		rec := audio.New(audio.Config{Backend: backend, Store: store})

		srv := server.New(server.Config{
			Recorder:   rec,
			Store:      store,
			Port:       port,
			ConfigPath: cfgFile,
		})

		slog.Info("VoiceCapture web server starting", "port", port, "config", cfgFile)

		// Start blocks for the life of the server.
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the web server")
}
