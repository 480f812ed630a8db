package channel

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/DetectorSim/internal/frame"
	"github.com/bryanchriswhite/DetectorSim/internal/logger"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	subscriberBuffer = 8
	writeTimeout     = 5 * time.Second
)

// Hub is the websocket transport. Every named channel keeps its last message
// and fans new ones out to its subscribers. A subscriber that cannot keep up
// misses messages rather than slowing the publisher down.
type Hub struct {
	frameChannel string

	running bool
	mu      sync.RWMutex

	// Connected clients per channel
	clientsMu sync.RWMutex
	clients   map[string]map[chan []byte]struct{}

	// Last message per channel, replayed to new subscribers
	lastMu sync.RWMutex
	last   map[string]lastMessage

	upgrader websocket.Upgrader

	// Stats
	frames    atomic.Uint64
	scalars   atomic.Uint64
	dropped   atomic.Uint64
	startTime time.Time
}

type lastMessage struct {
	data     []byte
	updated  time.Time
	messages uint64
}

// ChannelInfo describes one channel served by the hub
type ChannelInfo struct {
	Name        string    `json:"name"`
	Subscribers int       `json:"subscribers"`
	Messages    uint64    `json:"messages"`
	LastUpdate  time.Time `json:"last_update"`
}

// HubStats summarizes hub activity
type HubStats struct {
	Running     bool    `json:"running"`
	Frames      uint64  `json:"frames"`
	Scalars     uint64  `json:"scalars"`
	Dropped     uint64  `json:"dropped"`
	Subscribers int     `json:"subscribers"`
	Uptime      float64 `json:"uptime_seconds"`
}

// NewHub creates a hub publishing frames on frameChannel
func NewHub(frameChannel string) *Hub {
	return &Hub{
		frameChannel: frameChannel,
		clients:      make(map[string]map[chan []byte]struct{}),
		last:         make(map[string]lastMessage),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Start marks the hub as accepting messages
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return fmt.Errorf("hub already running")
	}

	h.running = true
	h.startTime = time.Now()

	logger.WithComponent("hub").Info().
		Str("channel", h.frameChannel).
		Msg("Websocket hub started")
	return nil
}

// Stop disconnects every subscriber
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return nil
	}

	h.running = false

	// Close all client connections
	h.clientsMu.Lock()
	for _, subs := range h.clients {
		for ch := range subs {
			close(ch)
		}
	}
	h.clients = make(map[string]map[chan []byte]struct{})
	h.clientsMu.Unlock()

	logger.WithComponent("hub").Info().
		Uint64("frames", h.frames.Load()).
		Uint64("dropped", h.dropped.Load()).
		Msg("Websocket hub stopped")
	return nil
}

// IsRunning returns true if the hub is active
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Name returns the transport name
func (h *Hub) Name() string {
	return "websocket"
}

// PublishFrame sends rec to the frame channel's subscribers
func (h *Hub) PublishFrame(rec *frame.Record) error {
	if !h.IsRunning() {
		return fmt.Errorf("hub not running")
	}
	data, err := EncodeFrame(h.frameChannel, rec)
	if err != nil {
		return err
	}
	h.broadcast(h.frameChannel, data)
	h.frames.Add(1)
	return nil
}

// PublishScalar sends a metadata value to name's subscribers
func (h *Hub) PublishScalar(name string, value float64, ts time.Time) error {
	if !h.IsRunning() {
		return fmt.Errorf("hub not running")
	}
	data, err := EncodeScalar(name, value, ts)
	if err != nil {
		return err
	}
	h.broadcast(name, data)
	h.scalars.Add(1)
	return nil
}

func (h *Hub) broadcast(name string, data []byte) {
	h.lastMu.Lock()
	lm := h.last[name]
	h.last[name] = lastMessage{data: data, updated: time.Now(), messages: lm.messages + 1}
	h.lastMu.Unlock()

	h.clientsMu.RLock()
	for ch := range h.clients[name] {
		select {
		case ch <- data:
		default:
			// Client is slow, skip this message
			h.dropped.Add(1)
		}
	}
	h.clientsMu.RUnlock()
}

// errHubStopped is returned when a subscription races Stop
var errHubStopped = errors.New("hub not running")

// subscribe registers a subscriber for name. Holding mu keeps Stop from
// closing the client set between the running check and the registration.
func (h *Hub) subscribe(name string) (chan []byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return nil, errHubStopped
	}

	ch := make(chan []byte, subscriberBuffer)

	h.lastMu.RLock()
	lm, ok := h.last[name]
	h.lastMu.RUnlock()
	if ok {
		ch <- lm.data
	}

	h.clientsMu.Lock()
	if h.clients[name] == nil {
		h.clients[name] = make(map[chan []byte]struct{})
	}
	h.clients[name][ch] = struct{}{}
	count := len(h.clients[name])
	h.clientsMu.Unlock()

	logger.WithComponent("hub").Info().
		Str("channel", name).
		Int("subscribers", count).
		Msg("Subscriber connected")
	return ch, nil
}

// unsubscribe removes ch unless Stop already closed it
func (h *Hub) unsubscribe(name string, ch chan []byte) {
	h.clientsMu.Lock()
	if subs, ok := h.clients[name]; ok {
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.clients, name)
		}
	}
	h.clientsMu.Unlock()

	logger.WithComponent("hub").Info().
		Str("channel", name).
		Msg("Subscriber disconnected")
}

// SubscribeHandler upgrades the request to a websocket streaming the channel
// named by the {name} route variable. Mount it at /channels/{name}.
func (h *Hub) SubscribeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		if name == "" {
			http.Error(w, "missing channel name", http.StatusBadRequest)
			return
		}
		if !h.IsRunning() {
			http.Error(w, "hub not running", http.StatusServiceUnavailable)
			return
		}

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.WithComponent("hub").Warn().Err(err).Msg("WebSocket upgrade error")
			return
		}
		defer conn.Close()

		msgs, err := h.subscribe(name)
		if err != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
				time.Now().Add(time.Second))
			return
		}
		defer h.unsubscribe(name, msgs)

		// Drain client frames so close and ping control messages are handled
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case data, ok := <-msgs:
				if !ok {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
						time.Now().Add(time.Second))
					return
				}
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
					return
				}
			case <-gone:
				return
			}
		}
	}
}

// Channels lists every channel that has published or has subscribers
func (h *Hub) Channels() []ChannelInfo {
	infos := make(map[string]*ChannelInfo)

	h.lastMu.RLock()
	for name, lm := range h.last {
		infos[name] = &ChannelInfo{Name: name, Messages: lm.messages, LastUpdate: lm.updated}
	}
	h.lastMu.RUnlock()

	h.clientsMu.RLock()
	for name, subs := range h.clients {
		if infos[name] == nil {
			infos[name] = &ChannelInfo{Name: name}
		}
		infos[name].Subscribers = len(subs)
	}
	h.clientsMu.RUnlock()

	out := make([]ChannelInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stats returns hub counters
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	running := h.running
	startTime := h.startTime
	h.mu.RUnlock()

	h.clientsMu.RLock()
	subscribers := 0
	for _, subs := range h.clients {
		subscribers += len(subs)
	}
	h.clientsMu.RUnlock()

	var uptime float64
	if running && !startTime.IsZero() {
		uptime = time.Since(startTime).Seconds()
	}

	return HubStats{
		Running:     running,
		Frames:      h.frames.Load(),
		Scalars:     h.scalars.Load(),
		Dropped:     h.dropped.Load(),
		Subscribers: subscribers,
		Uptime:      uptime,
	}
}
