// Package config holds the typed detectorsim configuration, its defaults and
// file I/O.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bryanchriswhite/DetectorSim/internal/frame"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
	"github.com/bryanchriswhite/DetectorSim/internal/server"
	"github.com/bryanchriswhite/DetectorSim/internal/source"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Transport kinds
const (
	TransportWebsocket = "websocket"
	TransportRedis     = "redis"
)

// ServerConfig is the [server] section
type ServerConfig struct {
	FrameRate        float64  `json:"frame_rate" yaml:"frame_rate" mapstructure:"frame_rate"`
	NFrames          int      `json:"n_frames" yaml:"n_frames" mapstructure:"n_frames"`
	CacheSize        int      `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`
	Runtime          float64  `json:"runtime" yaml:"runtime" mapstructure:"runtime"`
	ChannelName      string   `json:"channel_name" yaml:"channel_name" mapstructure:"channel_name"`
	MetadataChannels []string `json:"metadata_channels" yaml:"metadata_channels" mapstructure:"metadata_channels"`
	StartDelay       float64  `json:"start_delay" yaml:"start_delay" mapstructure:"start_delay"`
	ReportPeriod     int      `json:"report_period" yaml:"report_period" mapstructure:"report_period"`
	DisableScreen    bool     `json:"disable_screen" yaml:"disable_screen" mapstructure:"disable_screen"`
	NotifyChannel    string   `json:"notify_channel" yaml:"notify_channel" mapstructure:"notify_channel"`
	NotifyValue      string   `json:"notify_value" yaml:"notify_value" mapstructure:"notify_value"`
	ListenAddr       string   `json:"listen_addr" yaml:"listen_addr" mapstructure:"listen_addr"`
	HistoryDB        string   `json:"history_db" yaml:"history_db" mapstructure:"history_db"`
	// Compression is the codec frames are published with; empty sends raw
	// frames.
	Compression string `json:"compression" yaml:"compression" mapstructure:"compression"`
}

// SimConfig is the [sim] section
type SimConfig struct {
	Minimum  *float64 `json:"minimum,omitempty" yaml:"minimum,omitempty" mapstructure:"minimum"`
	Maximum  *float64 `json:"maximum,omitempty" yaml:"maximum,omitempty" mapstructure:"maximum"`
	NXPixels int      `json:"n_x_pixels" yaml:"n_x_pixels" mapstructure:"n_x_pixels"`
	NYPixels int      `json:"n_y_pixels" yaml:"n_y_pixels" mapstructure:"n_y_pixels"`
	Datatype string   `json:"datatype" yaml:"datatype" mapstructure:"datatype"`
	Seed     int64    `json:"seed" yaml:"seed" mapstructure:"seed"`
	Stamp    bool     `json:"stamp" yaml:"stamp" mapstructure:"stamp"`
}

// FileConfig is the [file] section
type FileConfig struct {
	FileName   string `json:"file_name" yaml:"file_name" mapstructure:"file_name"`
	FileFormat string `json:"file_format" yaml:"file_format" mapstructure:"file_format"`
	LazyLoad   bool   `json:"lazy_load" yaml:"lazy_load" mapstructure:"lazy_load"`
}

// ScreenConfig is the [screen] section. A zero width or height grabs the
// whole root window.
type ScreenConfig struct {
	X      int `json:"x" yaml:"x" mapstructure:"x"`
	Y      int `json:"y" yaml:"y" mapstructure:"y"`
	Width  int `json:"width" yaml:"width" mapstructure:"width"`
	Height int `json:"height" yaml:"height" mapstructure:"height"`
}

// TransportConfig is the [transport] section
type TransportConfig struct {
	Kind          string `json:"kind" yaml:"kind" mapstructure:"kind"`
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `json:"-" yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db" mapstructure:"redis_db"`
	RedisPrefix   string `json:"redis_prefix" yaml:"redis_prefix" mapstructure:"redis_prefix"`
	MQTTBroker    string `json:"mqtt_broker" yaml:"mqtt_broker" mapstructure:"mqtt_broker"`
	MQTTClientID  string `json:"mqtt_client_id" yaml:"mqtt_client_id" mapstructure:"mqtt_client_id"`
}

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server" mapstructure:"server"`
	Sim       SimConfig       `json:"sim" yaml:"sim" mapstructure:"sim"`
	File      FileConfig      `json:"file" yaml:"file" mapstructure:"file"`
	Screen    ScreenConfig    `json:"screen" yaml:"screen" mapstructure:"screen"`
	Transport TransportConfig `json:"transport" yaml:"transport" mapstructure:"transport"`
	LogLevel  string          `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty bool            `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			FrameRate:        20,
			CacheSize:        1000,
			Runtime:          300,
			ChannelName:      "pvapy:image",
			MetadataChannels: []string{},
			StartDelay:       10,
			ReportPeriod:     1,
			NotifyValue:      "1",
			ListenAddr:       ":11000",
		},
		Sim: SimConfig{
			NXPixels: 256,
			NYPixels: 256,
			Datatype: "uint8",
		},
		File: FileConfig{
			FileFormat: "auto",
		},
		Transport: TransportConfig{
			Kind:         TransportWebsocket,
			RedisAddr:    "localhost:6379",
			MQTTClientID: "detectorsim",
		},
		LogLevel: "info",
	}
}

// SetDefaults registers every default value in v so that flags, environment
// and file values layer on top of them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.frame_rate", d.Server.FrameRate)
	v.SetDefault("server.n_frames", d.Server.NFrames)
	v.SetDefault("server.cache_size", d.Server.CacheSize)
	v.SetDefault("server.runtime", d.Server.Runtime)
	v.SetDefault("server.channel_name", d.Server.ChannelName)
	v.SetDefault("server.metadata_channels", d.Server.MetadataChannels)
	v.SetDefault("server.start_delay", d.Server.StartDelay)
	v.SetDefault("server.report_period", d.Server.ReportPeriod)
	v.SetDefault("server.disable_screen", d.Server.DisableScreen)
	v.SetDefault("server.notify_channel", d.Server.NotifyChannel)
	v.SetDefault("server.notify_value", d.Server.NotifyValue)
	v.SetDefault("server.listen_addr", d.Server.ListenAddr)
	v.SetDefault("server.history_db", d.Server.HistoryDB)
	v.SetDefault("server.compression", d.Server.Compression)

	v.SetDefault("sim.n_x_pixels", d.Sim.NXPixels)
	v.SetDefault("sim.n_y_pixels", d.Sim.NYPixels)
	v.SetDefault("sim.datatype", d.Sim.Datatype)
	v.SetDefault("sim.seed", d.Sim.Seed)
	v.SetDefault("sim.stamp", d.Sim.Stamp)

	v.SetDefault("file.file_name", d.File.FileName)
	v.SetDefault("file.file_format", d.File.FileFormat)
	v.SetDefault("file.lazy_load", d.File.LazyLoad)

	v.SetDefault("screen.x", d.Screen.X)
	v.SetDefault("screen.y", d.Screen.Y)
	v.SetDefault("screen.width", d.Screen.Width)
	v.SetDefault("screen.height", d.Screen.Height)

	v.SetDefault("transport.kind", d.Transport.Kind)
	v.SetDefault("transport.redis_addr", d.Transport.RedisAddr)
	v.SetDefault("transport.redis_password", d.Transport.RedisPassword)
	v.SetDefault("transport.redis_db", d.Transport.RedisDB)
	v.SetDefault("transport.redis_prefix", d.Transport.RedisPrefix)
	v.SetDefault("transport.mqtt_broker", d.Transport.MQTTBroker)
	v.SetDefault("transport.mqtt_client_id", d.Transport.MQTTClientID)

	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)
}

// DefaultPath returns $HOME/.config/detectorsim/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "detectorsim", "config.yaml"), nil
}

// Load reads the config file at path into v and returns the validated
// configuration. A missing file at the default location is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case !explicit && (errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)):
			logger.WithComponent("config").Debug().Str("path", path).Msg("No config file, using defaults")
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		logger.WithComponent("config").Debug().Str("path", path).Msg("Config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration and clamps values that have a floor
func (c *Config) Validate() error {
	if c.Server.CacheSize < server.MinCacheSize {
		logger.WithComponent("config").Warn().
			Int("cache_size", c.Server.CacheSize).
			Int("min", server.MinCacheSize).
			Msg("Cache size below minimum, clamping")
		c.Server.CacheSize = server.MinCacheSize
	}
	if c.Server.FrameRate < 0 {
		return fmt.Errorf("invalid frame rate %v: must be >= 0", c.Server.FrameRate)
	}
	if c.Server.ReportPeriod < 1 {
		c.Server.ReportPeriod = 1
	}
	if _, err := frame.ParseElementType(c.Sim.Datatype); err != nil {
		return fmt.Errorf("invalid sim.datatype: %w", err)
	}
	if !source.ValidCodec(c.Server.Compression) {
		return fmt.Errorf("invalid server.compression %q (want one of %v)", c.Server.Compression, source.Codecs())
	}
	switch c.Transport.Kind {
	case TransportWebsocket, TransportRedis:
	default:
		return fmt.Errorf("unknown transport kind %q (want %s or %s)", c.Transport.Kind, TransportWebsocket, TransportRedis)
	}
	if c.LogLevel != "" && !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

// Save writes cfg as YAML to path, creating parent directories
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	logger.WithComponent("config").Info().Str("path", path).Msg("Config saved")
	return nil
}

// ServerConfig converts the run settings into the server's configuration
func (c *Config) ServerConfig() server.Config {
	return server.Config{
		ChannelName:      c.Server.ChannelName,
		FrameRate:        c.Server.FrameRate,
		Runtime:          seconds(c.Server.Runtime),
		NFrames:          c.Server.NFrames,
		CacheSize:        c.Server.CacheSize,
		StartDelay:       seconds(c.Server.StartDelay),
		ReportPeriod:     c.Server.ReportPeriod,
		MetadataChannels: c.Server.MetadataChannels,
		NotifyChannel:    c.Server.NotifyChannel,
		NotifyValue:      c.Server.NotifyValue,
	}
}

// RandomConfig converts the [sim] section into generator settings. frames is
// the number of frames to generate.
func (c *Config) RandomConfig(frames int) (source.RandomConfig, error) {
	element, err := frame.ParseElementType(c.Sim.Datatype)
	if err != nil {
		return source.RandomConfig{}, err
	}
	return source.RandomConfig{
		Frames:  frames,
		Width:   c.Sim.NXPixels,
		Height:  c.Sim.NYPixels,
		Element: element,
		Minimum: c.Sim.Minimum,
		Maximum: c.Sim.Maximum,
		Seed:    c.Sim.Seed,
		Stamp:   c.Sim.Stamp,
	}, nil
}

// FileOptions converts the [file] section into reader options
func (c *Config) FileOptions() source.FileOptions {
	return source.FileOptions{Format: c.File.FileFormat, Lazy: c.File.LazyLoad}
}

// ScreenRegion converts the [screen] section into a grab region
func (c *Config) ScreenRegion() source.ScreenRegion {
	return source.ScreenRegion{X: c.Screen.X, Y: c.Screen.Y, Width: c.Screen.Width, Height: c.Screen.Height}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
