package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/DetectorSim/internal/config"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Long: `Write a configuration file holding every default value. The command
refuses to overwrite an existing file.`,
	Example: `  # Write $HOME/.config/detectorsim/config.yaml
  detectorsim init

  # Write somewhere else
  detectorsim init --config ./detectorsim.yaml`,
	// The file does not exist yet, so skip loading it.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Init(viper.GetString("log_level"), viper.GetBool("log_pretty"))
		return nil
	},
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := config.Save(config.Default(), path); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	return nil
}
