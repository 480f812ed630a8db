package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/DetectorSim/internal/config"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *config.Config
	rootCmd = &cobra.Command{
		Use:   "detectorsim",
		Short: "DetectorSim - Streaming area detector simulator",
		Long: `DetectorSim publishes a stream of detector image frames at a configured
rate so that downstream consumers can be exercised without real hardware.

Features:
  • Randomly generated frames of any integer or float datatype
  • Frames loaded from NumPy (.npy) files and TIFF stacks
  • Frames grabbed from the X11 screen
  • Table (recycle) and queue (stream through) frame caches
  • Websocket and Redis frame transports, MQTT metadata channels
  • REST API with live statistics and an optional run history`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
)

// flagKeys maps command line flags onto configuration keys. Flags are bound
// for the command being executed only, so run commands may share flag names.
var flagKeys = map[string]string{
	"log-level":         "log_level",
	"log-pretty":        "log_pretty",
	"frame-rate":        "server.frame_rate",
	"n-frames":          "server.n_frames",
	"cache-size":        "server.cache_size",
	"runtime":           "server.runtime",
	"channel-name":      "server.channel_name",
	"metadata-channels": "server.metadata_channels",
	"start-delay":       "server.start_delay",
	"report-period":     "server.report_period",
	"disable-screen":    "server.disable_screen",
	"notify-channel":    "server.notify_channel",
	"notify-value":      "server.notify_value",
	"listen-addr":       "server.listen_addr",
	"history-db":        "server.history_db",
	"compression":       "server.compression",
	"transport":         "transport.kind",
	"redis-addr":        "transport.redis_addr",
	"redis-prefix":      "transport.redis_prefix",
	"mqtt-broker":       "transport.mqtt_broker",
	"n-x-pixels":        "sim.n_x_pixels",
	"n-y-pixels":        "sim.n_y_pixels",
	"datatype":          "sim.datatype",
	"minimum":           "sim.minimum",
	"maximum":           "sim.maximum",
	"seed":              "sim.seed",
	"stamp":             "sim.stamp",
	"file-name":         "file.file_name",
	"file-format":       "file.file_format",
	"lazy-load":         "file.lazy_load",
	"x":                 "screen.x",
	"y":                 "screen.y",
	"width":             "screen.width",
	"height":            "screen.height",
}

func init() {
	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("DETECTORSIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/detectorsim/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human readable log output")
}

// loadConfig binds the flags of the executing command, reads the config file
// and initializes the logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}

	loaded, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return nil
}

// configPath returns the config file in use
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultPath()
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
