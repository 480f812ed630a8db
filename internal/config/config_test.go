package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	t.Setenv("HOME", t.TempDir())
	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.FrameRate != 20 || cfg.Server.CacheSize != 1000 || cfg.Server.ChannelName != "pvapy:image" {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Sim.NXPixels != 256 || cfg.Sim.Datatype != "uint8" || cfg.Sim.Minimum != nil {
		t.Errorf("sim defaults = %+v", cfg.Sim)
	}
	if cfg.Transport.Kind != TransportWebsocket || cfg.Server.ListenAddr != ":11000" {
		t.Errorf("transport defaults = %+v", cfg.Transport)
	}

	sc := cfg.ServerConfig()
	if sc.Runtime != 300*time.Second || sc.StartDelay != 10*time.Second || sc.NotifyValue != "1" {
		t.Errorf("ServerConfig() = %+v", sc)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  frame_rate: 0
  cache_size: 0
  runtime: 1.5
  metadata_channels: ["pva://x", "ca://y"]
sim:
  datatype: uint16
  minimum: 10
  maximum: 20
transport:
  kind: redis
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v, path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.CacheSize != 1 {
		t.Errorf("cache size = %d, want clamped to 1", cfg.Server.CacheSize)
	}
	if cfg.Server.FrameRate != 0 || cfg.Transport.Kind != TransportRedis {
		t.Errorf("overrides not applied: %+v %+v", cfg.Server, cfg.Transport)
	}
	if len(cfg.Server.MetadataChannels) != 2 {
		t.Errorf("metadata channels = %v", cfg.Server.MetadataChannels)
	}
	if got := cfg.ServerConfig().Runtime; got != 1500*time.Millisecond {
		t.Errorf("runtime = %v", got)
	}

	rc, err := cfg.RandomConfig(4)
	if err != nil {
		t.Fatalf("RandomConfig() failed: %v", err)
	}
	if rc.Minimum == nil || *rc.Minimum != 10 || rc.Maximum == nil || *rc.Maximum != 20 || rc.Element.String() != "uint16" {
		t.Errorf("RandomConfig() = %+v", rc)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	if _, err := Load(v, filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Errorf("Load() of a missing explicit file succeeded")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"negative rate", func(c *Config) { c.Server.FrameRate = -1 }, true},
		{"bad datatype", func(c *Config) { c.Sim.Datatype = "complex128" }, true},
		{"bad transport", func(c *Config) { c.Transport.Kind = "pigeon" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"float datatype", func(c *Config) { c.Sim.Datatype = "float32" }, false},
		{"zstd compression", func(c *Config) { c.Server.Compression = "zstd" }, false},
		{"blosc compression", func(c *Config) { c.Server.Compression = "blosc" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Server.ChannelName = "det:image"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	v := viper.New()
	SetDefaults(v)
	loaded, err := Load(v, path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Server.ChannelName != "det:image" {
		t.Errorf("channel name = %q", loaded.Server.ChannelName)
	}
}
