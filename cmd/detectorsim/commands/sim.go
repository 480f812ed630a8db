package commands

import (
	"fmt"

	"github.com/bryanchriswhite/DetectorSim/internal/source"
	"github.com/spf13/cobra"
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Serve randomly generated frames",
	Long: `Generate a set of random frames up front and serve them at the configured
frame rate. When every frame fits into the cache the set is recycled until the
runtime elapses; otherwise each frame is published once.`,
	Example: `  # 16-bit frames at 100 fps for one minute
  detectorsim sim --datatype uint16 --frame-rate 100 --runtime 60

  # Stamp the frame index into each image and start right away
  detectorsim sim --stamp --start-delay 0`,
	RunE: runSim,
}

func init() {
	rootCmd.AddCommand(simCmd)
	addRunFlags(simCmd)

	simCmd.Flags().Int("n-x-pixels", 0, "frame width")
	simCmd.Flags().Int("n-y-pixels", 0, "frame height")
	simCmd.Flags().String("datatype", "", "pixel datatype (int8 ... uint64, float32, float64)")
	simCmd.Flags().Float64("minimum", 0, "minimum generated value")
	simCmd.Flags().Float64("maximum", 0, "maximum generated value")
	simCmd.Flags().Int64("seed", 0, "random seed (0 picks one from the clock)")
	simCmd.Flags().Bool("stamp", false, "burn the frame index into each frame")
}

func runSim(cmd *cobra.Command, args []string) error {
	frames := cfg.Server.NFrames
	if frames <= 0 {
		frames = cfg.Server.CacheSize
	}
	rc, err := cfg.RandomConfig(frames)
	if err != nil {
		return err
	}
	gen, err := source.NewRandom(rc)
	if err != nil {
		return fmt.Errorf("failed to generate frames: %w", err)
	}
	return runServer(cmd, []source.Source{gen})
}
