package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage stored options",
	Long:  `View and manage the persisted VoiceCapture options.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective options",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(store.Current())
		if err != nil {
			return fmt.Errorf("error marshaling options: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the options file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(cfgFile)
		return nil
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the built-in defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		store.Reset()
		if err := store.SaveFile(cfgFile); err != nil {
			return fmt.Errorf("failed to save options: %w", err)
		}
		fmt.Printf("Options reset to defaults and saved to %s\n", cfgFile)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configResetCmd)
}
