package commands

import (
	"fmt"

	"github.com/bryanchriswhite/DetectorSim/internal/source"
	"github.com/spf13/cobra"
)

var stackCmd = &cobra.Command{
	Use:   "stack",
	Short: "Serve every frame file in a directory",
	Long: `Load every supported file in a directory in lexical order and serve their
frames as one concatenated stream. TIFF images form a single stack; each
NumPy file contributes all of its frames.`,
	Example: `  # Serve a directory of TIFF images at 10 fps
  detectorsim stack --file-name /data/scan42 --frame-rate 10

  # Read large NumPy files on demand
  detectorsim stack --file-name /data/npy --lazy-load`,
	RunE: runStack,
}

func init() {
	rootCmd.AddCommand(stackCmd)
	addRunFlags(stackCmd)
	addFileFlags(stackCmd)
}

// addFileFlags registers the flags of the file backed commands
func addFileFlags(cmd *cobra.Command) {
	cmd.Flags().String("file-name", "", "input file or directory")
	cmd.Flags().String("file-format", "", "input format (npy, tiff or auto)")
	cmd.Flags().Bool("lazy-load", false, "read frames from disk on demand")
}

func runStack(cmd *cobra.Command, args []string) error {
	if cfg.File.FileName == "" {
		return fmt.Errorf("--file-name is required")
	}
	sources, err := source.OpenDir(cfg.File.FileName, cfg.FileOptions())
	if err != nil {
		return err
	}
	return runServer(cmd, sources)
}
