package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/audiolibrelab/voicecapture/internal/options"
)

var (
	store        *options.Store
	cfgFile      string
	backendName  string
	logFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "voicecapture",
	Short: "Microphone capture engine with local and remote control",
	Long: `VoiceCapture records from the microphone through a streaming pipeline
with live gain, optional DSP, and WAV or MP3 output.

Recordings can be driven from this CLI or remotely: 'voicecapture serve'
starts a web server that exposes the full recorder over HTTP and pushes
state, duration and result events over a WebSocket.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel, logFile)

		if cfgFile == "" {
			path, err := options.DefaultPath()
			if err != nil {
				return fmt.Errorf("resolving default config path: %w", err)
			}
			cfgFile = path
		}

		store = options.NewStore()
		if err := store.LoadFile(cfgFile); err != nil {
			return fmt.Errorf("failed to load options: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "options file (default is ~/.config/voicecapture/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "capture backend: miniaudio, portaudio, file (default auto)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write JSON logs to this file with rotation instead of stderr")
	rootCmd.PersistentFlags().CountVarP(&verboseLevel, "verbose", "v", "increase log verbosity (-v debug, -vv debug with source locations)")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging configures slog based on the verbose level. With a log
// file the handler switches to JSON through a rotating writer so long
// serve sessions cannot fill the disk.
func setupLogging(level int, logFile string) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch {
	case level == 1:
		opts.Level = slog.LevelDebug
	case level >= 2:
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}

	var handler slog.Handler
	if logFile != "" {
		writer := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
