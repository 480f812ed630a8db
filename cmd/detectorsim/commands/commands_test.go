package commands

import (
	"testing"

	"github.com/bryanchriswhite/DetectorSim/internal/channel"
	"github.com/bryanchriswhite/DetectorSim/internal/config"
)

func TestDialAddr(t *testing.T) {
	tests := map[string]string{
		":11000":         "localhost:11000",
		"0.0.0.0:8080":   "localhost:8080",
		"10.0.0.5:11000": "10.0.0.5:11000",
		"detector":       "detector",
	}
	for in, want := range tests {
		if got := dialAddr(in); got != want {
			t.Errorf("dialAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenTransport(t *testing.T) {
	c := config.Default()
	pub, hub := openTransport(c)
	if hub == nil || pub != hub {
		t.Errorf("websocket transport = %T, hub %v", pub, hub)
	}

	c.Transport.Kind = config.TransportRedis
	pub, hub = openTransport(c)
	if hub != nil {
		t.Errorf("redis transport returned a hub")
	}
	if _, ok := pub.(*channel.RedisPublisher); !ok {
		t.Errorf("redis transport = %T", pub)
	}
}

func TestFrameCounterCancels(t *testing.T) {
	cancelled := false
	c := &frameCounter{limit: 3, cancel: func() { cancelled = true }}
	c.add()
	c.add()
	if cancelled {
		t.Fatalf("cancelled after 2 frames")
	}
	c.add()
	if !cancelled {
		t.Errorf("not cancelled after 3 frames")
	}
}

func TestFlagKeysAreKnownConfigKeys(t *testing.T) {
	for _, name := range []string{"frame-rate", "datatype", "file-name", "x"} {
		if _, ok := flagKeys[name]; !ok {
			t.Errorf("flag --%s is not bound", name)
		}
	}
	for _, cmd := range []string{"sim", "stack", "file", "screen"} {
		c, _, err := rootCmd.Find([]string{cmd})
		if err != nil || c.Name() != cmd {
			t.Fatalf("command %s not registered: %v", cmd, err)
		}
		if c.Flags().Lookup("frame-rate") == nil {
			t.Errorf("%s has no --frame-rate", cmd)
		}
	}
}
