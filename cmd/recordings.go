package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicecapture/internal/options"
)

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "List finished recordings",
	Long:  `List the recordings in the configured output directory, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := options.ExpandPath(store.Current().Output.Directory)

		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			fmt.Printf("No recordings yet (%s does not exist)\n", dir)
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading output directory: %w", err)
		}

		type recording struct {
			name    string
			size    int64
			modTime string
			sortKey int64
		}
		var recordings []recording
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(entry.Name())), ".")
			if ext != "wav" && ext != "mp3" {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			recordings = append(recordings, recording{
				name:    entry.Name(),
				size:    info.Size(),
				modTime: info.ModTime().Format("2006-01-02 15:04:05"),
				sortKey: info.ModTime().UnixNano(),
			})
		}
		sort.Slice(recordings, func(i, j int) bool {
			return recordings[i].sortKey > recordings[j].sortKey
		})

		if len(recordings) == 0 {
			fmt.Printf("No recordings in %s\n", dir)
			return nil
		}

		fmt.Printf("Recordings in %s:\n", dir)
		for i, rec := range recordings {
			fmt.Printf("  %d. %s  %s  %s\n", i+1, rec.name, rec.modTime, formatSize(rec.size))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recordingsCmd)
}
