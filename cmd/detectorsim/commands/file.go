package commands

import (
	"fmt"

	"github.com/bryanchriswhite/DetectorSim/internal/source"
	"github.com/spf13/cobra"
)

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Serve frames from a single file",
	Long:  `Serve the frames of one NumPy (.npy) or TIFF (.tif, .tiff) file.`,
	Example: `  # Serve a NumPy stack of shape (N, rows, cols)
  detectorsim file --file-name frames.npy --frame-rate 50

  # Serve the first 100 frames only
  detectorsim file --file-name frames.npy --n-frames 100`,
	RunE: runFile,
}

func init() {
	rootCmd.AddCommand(fileCmd)
	addRunFlags(fileCmd)
	addFileFlags(fileCmd)
}

func runFile(cmd *cobra.Command, args []string) error {
	if cfg.File.FileName == "" {
		return fmt.Errorf("--file-name is required")
	}
	src, err := source.Open(cfg.File.FileName, cfg.FileOptions())
	if err != nil {
		return err
	}
	return runServer(cmd, []source.Source{src})
}
