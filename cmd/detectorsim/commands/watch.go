package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bryanchriswhite/DetectorSim/internal/channel"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print messages received on websocket channels",
	Long: `Subscribe to one or more channels of a running websocket transport and
print the id and timestamps of every frame and the value of every scalar.`,
	Example: `  # Watch the configured frame channel on the local server
  detectorsim watch

  # Watch a frame channel and a metadata channel on another host
  detectorsim watch --addr detector:11000 --channel det:image --channel det:temp`,
	RunE: runWatch,
}

var (
	watchAddr     string
	watchChannels []string
	watchCount    int64
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchAddr, "addr", "", "server address (default from server.listen_addr)")
	watchCmd.Flags().StringSliceVar(&watchChannels, "channel", nil, "channel to watch (default server.channel_name)")
	watchCmd.Flags().Int64Var(&watchCount, "count", 0, "exit after this many frames (0 watches until interrupted)")
}

// dialAddr turns a listen address such as ":11000" into one a client can dial
func dialAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

// frameCounter cancels the watch once enough frames have arrived
type frameCounter struct {
	mu     sync.Mutex
	n      int64
	limit  int64
	cancel context.CancelFunc
}

func (c *frameCounter) add() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	if c.limit > 0 && c.n >= c.limit {
		c.cancel()
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	addr := watchAddr
	if addr == "" {
		addr = dialAddr(cfg.Server.ListenAddr)
	}
	names := watchChannels
	if len(names) == 0 {
		names = []string{cfg.Server.ChannelName}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	counter := &frameCounter{limit: watchCount, cancel: cancel}
	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			err := channel.Subscribe(ctx, channel.SubscribeURL(addr, name), func(m *channel.Message) error {
				printMessage(m)
				if m.Kind == channel.KindFrame {
					counter.add()
				}
				return nil
			})
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				cancel()
			}
		}(name)
	}
	wg.Wait()
	return firstErr
}

func printMessage(m *channel.Message) {
	switch m.Kind {
	case channel.KindFrame:
		f := m.Frame
		size := humanize.Bytes(uint64(f.UncompressedSize))
		if f.Codec.Name != "" {
			size = fmt.Sprintf("%s as %s %s", size, humanize.Bytes(uint64(f.CompressedSize)), f.Codec.Name)
		}
		fmt.Printf("%s: frame id %6d captured %s published %s (%s, %s)\n",
			m.Channel, f.UniqueID,
			f.TimeStamp.Time().Format(time.RFC3339Nano),
			f.DataTimeStamp.Time().Format(time.RFC3339Nano),
			f.Codec.ElementType, size)
	case channel.KindScalar:
		fmt.Printf("%s: %.6f @ %s\n", m.Channel, m.Scalar.Value,
			m.Scalar.TimeStamp.Time().Format(time.RFC3339Nano))
	}
}
