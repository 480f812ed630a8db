package commands

import (
	"sort"
	"strings"

	"github.com/bryanchriswhite/DetectorSim/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Log the effective configuration",
	Long: `Log every effective configuration value, grouped by section, after
defaults, the config file, environment and flags have been applied.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	log := logger.WithComponent("status")
	log.Info().Str("path", path).Msg("Configuration file")

	keys := viper.AllKeys()
	sort.Strings(keys)
	for _, key := range keys {
		if strings.HasSuffix(key, "password") {
			log.Info().Bool("set", viper.GetString(key) != "").Msg(key)
			continue
		}
		log.Info().Interface("value", viper.Get(key)).Msg(key)
	}
	return nil
}
