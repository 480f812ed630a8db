package channel

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bryanchriswhite/DetectorSim/internal/frame"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

func testRecord(t *testing.T, id int64) *frame.Record {
	t.Helper()
	raw := &frame.RawFrame{Data: []byte{1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0}, Shape: []int{2, 3}, Element: frame.Uint16}
	rec, err := frame.NewBuilder().Build(0, raw, nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return rec.Stamped(id, time.Unix(1700000000, 123456789))
}

func TestFrameWireFormat(t *testing.T) {
	rec := testRecord(t, 42)
	data, err := EncodeFrame("det:image", rec)
	if err != nil {
		t.Fatalf("EncodeFrame() failed: %v", err)
	}

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if msg.Kind != KindFrame || msg.Channel != "det:image" {
		t.Fatalf("message = %s on %q", msg.Kind, msg.Channel)
	}

	f := msg.Frame
	if _, ok := f.Value["ushortValue"]; !ok {
		t.Errorf("value union keys = %v, want ushortValue", f.Value)
	}
	if f.Codec.ElementType != "uint16" || f.Codec.Name != "" {
		t.Errorf("codec = %+v", f.Codec)
	}
	if f.TimeStamp != f.DataTimeStamp || f.TimeStamp.SecondsPastEpoch != 1700000000 || f.TimeStamp.Nanoseconds != 123456789 {
		t.Errorf("timestamps = %+v / %+v", f.TimeStamp, f.DataTimeStamp)
	}

	back, err := f.Record()
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if back.UniqueID != 42 || back.Width() != 3 || back.Height() != 2 || back.ColorMode != frame.ColorModeMono {
		t.Errorf("decoded record = id %d %dx%d %v", back.UniqueID, back.Width(), back.Height(), back.ColorMode)
	}
	if !bytes.Equal(back.Data, rec.Data) {
		t.Errorf("payload changed on the wire")
	}
	if back.Descriptor != frame.DefaultDescriptor {
		t.Errorf("descriptor = %q", back.Descriptor)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not msgpack")); err == nil {
		t.Errorf("Decode() accepted garbage")
	}
}

func newHubServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc("/channels/{name}", h.SubscribeHandler())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func waitSubscribers(t *testing.T, h *Hub, name string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, c := range h.Channels() {
			if c.Name == name && c.Subscribers >= n {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("channel %s never reached %d subscribers", name, n)
}

func TestHubDeliversFramesAndScalars(t *testing.T) {
	h := NewHub("det:image")
	if err := h.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer h.Stop()
	srv := newHubServer(t, h)
	addr := strings.TrimPrefix(srv.URL, "http://")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	frames := make(chan *Message, 10)
	go Subscribe(ctx, SubscribeURL(addr, "det:image"), func(m *Message) error {
		frames <- m
		return nil
	})
	scalars := make(chan *Message, 10)
	go Subscribe(ctx, SubscribeURL(addr, "det:temp"), func(m *Message) error {
		scalars <- m
		return nil
	})
	waitSubscribers(t, h, "det:image", 1)
	waitSubscribers(t, h, "det:temp", 1)

	for i := int64(1); i <= 3; i++ {
		if err := h.PublishFrame(testRecord(t, i)); err != nil {
			t.Fatalf("PublishFrame() failed: %v", err)
		}
	}
	if err := h.PublishScalar("det:temp", 0.25, time.Now()); err != nil {
		t.Fatalf("PublishScalar() failed: %v", err)
	}

	for want := int64(1); want <= 3; want++ {
		select {
		case m := <-frames:
			if m.Kind != KindFrame || m.Frame.UniqueID != want {
				t.Errorf("got %s id %d, want frame %d", m.Kind, m.Frame.UniqueID, want)
			}
		case <-ctx.Done():
			t.Fatalf("frame %d never arrived", want)
		}
	}
	select {
	case m := <-scalars:
		if m.Kind != KindScalar || m.Scalar.Value != 0.25 {
			t.Errorf("scalar message = %+v", m)
		}
	case <-ctx.Done():
		t.Fatalf("scalar never arrived")
	}

	stats := h.Stats()
	if stats.Frames != 3 || stats.Scalars != 1 || stats.Subscribers != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestHubReplaysLastMessage(t *testing.T) {
	h := NewHub("det:image")
	h.Start()
	defer h.Stop()
	srv := newHubServer(t, h)

	if err := h.PublishFrame(testRecord(t, 9)); err != nil {
		t.Fatalf("PublishFrame() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got := make(chan int64, 1)
	errStop := errors.New("stop")
	go Subscribe(ctx, SubscribeURL(strings.TrimPrefix(srv.URL, "http://"), "det:image"), func(m *Message) error {
		got <- m.Frame.UniqueID
		return errStop
	})

	select {
	case id := <-got:
		if id != 9 {
			t.Errorf("replayed frame %d, want 9", id)
		}
	case <-ctx.Done():
		t.Fatalf("last frame not replayed")
	}
}

func TestHubRejectsWhenStopped(t *testing.T) {
	h := NewHub("det:image")
	if err := h.PublishFrame(testRecord(t, 1)); err == nil {
		t.Errorf("PublishFrame() on a stopped hub succeeded")
	}
	h.Start()
	if err := h.Start(); err == nil {
		t.Errorf("second Start() succeeded")
	}
	h.Stop()
	if err := h.Stop(); err != nil {
		t.Errorf("second Stop() failed: %v", err)
	}
	if err := h.PublishScalar("x", 1, time.Now()); err == nil {
		t.Errorf("PublishScalar() after Stop succeeded")
	}
}

func TestHubStopDisconnectsSubscribers(t *testing.T) {
	h := NewHub("det:image")
	h.Start()
	srv := newHubServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result := make(chan error, 1)
	go func() {
		result <- Subscribe(ctx, SubscribeURL(strings.TrimPrefix(srv.URL, "http://"), "det:image"), func(*Message) error { return nil })
	}()
	waitSubscribers(t, h, "det:image", 1)

	h.Stop()
	select {
	case err := <-result:
		if err != nil {
			t.Errorf("Subscribe() returned %v after server stop", err)
		}
	case <-ctx.Done():
		t.Fatalf("subscriber not disconnected")
	}
}

func TestMQTTNotConnected(t *testing.T) {
	m := NewMQTTScalars(MQTTOptions{Broker: "localhost:1883", ClientID: "test"})
	if err := m.PublishScalar("temp", 1, time.Now()); err == nil {
		t.Errorf("PublishScalar() without a connection succeeded")
	}
	if err := m.Notify("ready", "1"); err == nil {
		t.Errorf("Notify() without a connection succeeded")
	}
	if _, errs := m.Stats(); errs != 2 {
		t.Errorf("error count = %d, want 2", errs)
	}
}

func TestRedisPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	p := NewRedisPublisherWithClient(client, "test:", "det:image")
	if err := p.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer p.Stop()

	sub := p.client.Subscribe(context.Background(), "test:det:image")
	defer sub.Close()
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := p.PublishFrame(testRecord(t, 5)); err != nil {
		t.Fatalf("PublishFrame() failed: %v", err)
	}
	select {
	case m := <-sub.Channel():
		msg, err := Decode([]byte(m.Payload))
		if err != nil {
			t.Fatalf("Decode() failed: %v", err)
		}
		if msg.Frame.UniqueID != 5 {
			t.Errorf("received frame %d, want 5", msg.Frame.UniqueID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no message received")
	}
	if p.Receivers() != 1 {
		t.Errorf("receivers = %d, want 1", p.Receivers())
	}

	if err := p.PublishScalar("det:temp", 21.5, time.Now()); err != nil {
		t.Fatalf("PublishScalar() failed: %v", err)
	}
	if p.Receivers() != 0 {
		t.Errorf("receivers = %d for a channel nobody subscribed to", p.Receivers())
	}
}

func TestRedisPublisherUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	p := NewRedisPublisher(RedisOptions{Addr: addr}, "det:image")
	defer p.Stop()
	if err := p.Start(); err == nil {
		t.Errorf("Start() against a closed server succeeded")
	}
}

func TestHubSubscribeAfterStop(t *testing.T) {
	h := NewHub("det:image")
	h.Start()
	h.Stop()

	ch, err := h.subscribe("det:image")
	if !errors.Is(err, errHubStopped) || ch != nil {
		t.Fatalf("subscribe() after Stop = %v, %v", ch, err)
	}
	if st := h.Stats(); st.Subscribers != 0 {
		t.Errorf("subscribers = %d after rejected subscribe", st.Subscribers)
	}
}
