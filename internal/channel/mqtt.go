package channel

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bryanchriswhite/DetectorSim/internal/logger"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
)

// MQTTOptions configure the MQTT scalar transport
type MQTTOptions struct {
	Broker   string
	ClientID string
	// TopicPrefix is prepended to every channel name
	TopicPrefix string
}

// MQTTScalars is the legacy scalar transport: each metadata channel is an
// MQTT topic carrying the value as plain text, the way process variables are
// put by simple clients. It also carries the start notification.
type MQTTScalars struct {
	opts   MQTTOptions
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
}

// NewMQTTScalars creates the transport; Connect dials the broker
func NewMQTTScalars(opts MQTTOptions) *MQTTScalars {
	return &MQTTScalars{
		opts:      opts,
		published: make(map[string]uint64),
	}
}

// Connect establishes connection to the MQTT broker
func (m *MQTTScalars) Connect() error {
	log := logger.WithComponent("mqtt")

	broker := m.opts.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(m.opts.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		m.mu.Lock()
		m.connected = true
		m.mu.Unlock()
		log.Info().Str("broker", broker).Str("client_id", m.opts.ClientID).Msg("MQTT connection established")
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		m.mu.Lock()
		m.connected = false
		m.mu.Unlock()
		log.Warn().Err(err).Str("broker", broker).Msg("MQTT connection lost, will auto-reconnect")
	}

	m.client = mqtt.NewClient(opts)

	token := m.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

// Disconnect closes the broker connection
func (m *MQTTScalars) Disconnect() {
	if m.client == nil {
		return
	}
	m.client.Disconnect(250)

	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

// PublishScalar puts value on the topic for name. The timestamp is not sent;
// legacy consumers stamp values on arrival.
func (m *MQTTScalars) PublishScalar(name string, value float64, _ time.Time) error {
	return m.put(name, strconv.FormatFloat(value, 'g', -1, 64))
}

// Notify puts value on channel
func (m *MQTTScalars) Notify(channel, value string) error {
	return m.put(channel, value)
}

func (m *MQTTScalars) put(name, payload string) error {
	if !m.isConnected() {
		m.countError()
		return fmt.Errorf("mqtt not connected")
	}

	topic := m.opts.TopicPrefix + name
	token := m.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		m.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		m.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	m.mu.Lock()
	m.published[topic]++
	m.mu.Unlock()
	return nil
}

func (m *MQTTScalars) isConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected && m.client != nil
}

func (m *MQTTScalars) countError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

// Stats returns published counts per topic and the error count
func (m *MQTTScalars) Stats() (map[string]uint64, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]uint64, len(m.published))
	for k, v := range m.published {
		out[k] = v
	}
	return out, m.errors
}
