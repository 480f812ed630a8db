package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/DetectorSim/internal/api"
	"github.com/bryanchriswhite/DetectorSim/internal/channel"
	"github.com/bryanchriswhite/DetectorSim/internal/config"
	"github.com/bryanchriswhite/DetectorSim/internal/history"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
	"github.com/bryanchriswhite/DetectorSim/internal/report"
	"github.com/bryanchriswhite/DetectorSim/internal/server"
	"github.com/bryanchriswhite/DetectorSim/internal/source"
	"github.com/spf13/cobra"
)

// addRunFlags registers the flags shared by every command that serves frames
func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64("frame-rate", 0, "frames per second (0 publishes as fast as possible)")
	f.Int("n-frames", 0, "number of distinct frames to serve (0 uses every available frame)")
	f.Int("cache-size", 0, "frame cache capacity")
	f.Float64("runtime", 0, "server runtime in seconds (0 runs until frames run out)")
	f.String("channel-name", "", "frame channel name")
	f.StringSlice("metadata-channels", nil, "metadata channels (pva://NAME, ca://NAME or NAME)")
	f.Float64("start-delay", 0, "seconds to wait before publishing starts")
	f.Int("report-period", 0, "report every Nth published frame")
	f.Bool("disable-screen", false, "print plain status lines instead of redrawing")
	f.String("notify-channel", "", "channel set once publishing is about to start")
	f.String("notify-value", "", "value written to the notify channel")
	f.String("listen-addr", "", "HTTP API and websocket listen address")
	f.String("history-db", "", "SQLite file journaling finished runs")
	f.String("compression", "", "publish frames compressed with this codec (zstd or snappy)")
	f.String("transport", "", "frame transport (websocket or redis)")
	f.String("redis-addr", "", "Redis address for the redis transport")
	f.String("redis-prefix", "", "prefix for Redis pub/sub channel names")
	f.String("mqtt-broker", "", "MQTT broker for metadata channels (tcp://host:1883)")
}

// openTransport builds the frame transport and, for websocket, the hub that
// the API mounts.
func openTransport(c *config.Config) (server.ChannelPublisher, *channel.Hub) {
	if c.Transport.Kind == config.TransportRedis {
		return channel.NewRedisPublisher(channel.RedisOptions{
			Addr:     c.Transport.RedisAddr,
			Password: c.Transport.RedisPassword,
			DB:       c.Transport.RedisDB,
			Prefix:   c.Transport.RedisPrefix,
		}, c.Server.ChannelName), nil
	}
	hub := channel.NewHub(c.Server.ChannelName)
	return hub, hub
}

// runServer serves frames from sources until the run ends, then prints and
// records the final statistics. The sources are closed on return.
func runServer(cmd *cobra.Command, sources []source.Source) error {
	compressed, err := source.Compress(sources, cfg.Server.Compression)
	if err != nil {
		source.CloseAll(sources)
		return err
	}
	sources = compressed
	defer source.CloseAll(sources)

	console := report.NewConsole(cfg.Server.DisableScreen)
	defer console.Close()

	transport, hub := openTransport(cfg)
	opts := []server.Option{server.WithReporter(console)}

	if cfg.Transport.MQTTBroker != "" {
		mq := channel.NewMQTTScalars(channel.MQTTOptions{
			Broker:   cfg.Transport.MQTTBroker,
			ClientID: cfg.Transport.MQTTClientID,
		})
		if err := mq.Connect(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		defer mq.Disconnect()
		opts = append(opts, server.WithLegacyTransport(mq), server.WithNotifier(mq))
	}

	srv, err := server.New(cfg.ServerConfig(), sources, transport, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	log := logger.WithRun("run", srv.Info().RunID)

	if cfg.Server.ListenAddr != "" {
		apiSrv := api.NewServer(srv, cfg, hub)
		if err := apiSrv.Start(cfg.Server.ListenAddr); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := apiSrv.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("API server shutdown failed")
			}
		}()
	}

	if err := srv.Start(); err != nil {
		srv.Stop()
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var deadline <-chan time.Time
	if cfg.Server.Runtime > 0 {
		sc := cfg.ServerConfig()
		wait := sc.Runtime + sc.StartDelay + server.ShutdownDelay
		timer := time.NewTimer(wait)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-srv.Done():
		log.Debug().Msg("Server reported done")
	case <-deadline:
		log.Debug().Msg("Runtime elapsed")
	case <-ctx.Done():
		console.Announce("Interrupted, stopping server")
	}

	stats := srv.Stop()
	if cfg.Server.HistoryDB != "" {
		if err := recordRun(stats); err != nil {
			log.Warn().Err(err).Msg("Failed to record run history")
		}
	}
	return stats.Err
}

func recordRun(stats server.Stats) error {
	store, err := history.Open(cfg.Server.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return store.Record(ctx, stats, time.Now())
}
