package commands

import (
	"fmt"

	"github.com/bryanchriswhite/DetectorSim/internal/source"
	"github.com/spf13/cobra"
)

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Serve frames grabbed from the X11 screen",
	Long: `Grab the X11 root window (or a region of it) as 8-bit grayscale frames.
The stream is unbounded, so frames go through the queue cache and the run
ends when the runtime elapses.`,
	Example: `  # Grab a 640x480 region at 5 fps
  detectorsim screen --x 100 --y 100 --width 640 --height 480 --frame-rate 5`,
	RunE: runScreen,
}

func init() {
	rootCmd.AddCommand(screenCmd)
	addRunFlags(screenCmd)

	screenCmd.Flags().Int("x", 0, "region left edge")
	screenCmd.Flags().Int("y", 0, "region top edge")
	screenCmd.Flags().Int("width", 0, "region width (0 for full width)")
	screenCmd.Flags().Int("height", 0, "region height (0 for full height)")
}

func runScreen(cmd *cobra.Command, args []string) error {
	grab, err := source.NewScreen(cfg.ScreenRegion())
	if err != nil {
		return fmt.Errorf("failed to connect to X11 server: %w", err)
	}
	return runServer(cmd, []source.Source{grab})
}
