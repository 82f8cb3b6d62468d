package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/plant-waterer/internal/logic"
)

// DefaultBufferSize is how many messages are held while disconnected.
const DefaultBufferSize = 100

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client   paho.Client
	log      *zap.Logger
	onStatus func(connected bool)

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. The connection is
// established in the background and retried until it succeeds, so a missing
// broker never blocks startup. onStatus may be nil.
func NewRealPublisher(broker, clientID string, log *zap.Logger, onStatus func(connected bool)) (*RealPublisher, error) {
	if broker == "" {
		return nil, fmt.Errorf("mqtt broker not configured")
	}
	p := &RealPublisher{
		log:      log,
		onStatus: onStatus,
		buf:      newRingBuffer(DefaultBufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{Event: EventOffline})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.handleConnect).
		SetConnectionLostHandler(p.handleConnectionLost)

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p, nil
}

func newPublisherWithClient(client paho.Client, log *zap.Logger, onStatus func(bool)) *RealPublisher {
	return &RealPublisher{client: client, log: log, onStatus: onStatus, buf: newRingBuffer(DefaultBufferSize)}
}

func (p *RealPublisher) handleConnect(paho.Client) {
	p.log.Info("mqtt connected")
	if p.onStatus != nil {
		p.onStatus(true)
	}

	p.mu.Lock()
	pending := p.buf.drainAll()
	p.mu.Unlock()

	if len(pending) > 0 {
		p.log.Info("mqtt replaying buffered messages", zap.Int("count", len(pending)))
	}
	for _, msg := range pending {
		if err := p.publish(msg); err != nil {
			p.log.Warn("mqtt replay failed", zap.String("topic", msg.topic), zap.Error(err))
		}
	}
}

func (p *RealPublisher) handleConnectionLost(_ paho.Client, err error) {
	p.log.Warn("mqtt connection lost", zap.Error(err))
	if p.onStatus != nil {
		p.onStatus(false)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends a pump event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.PumpEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(bufferedMsg{topic: TopicEvents, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		if p.buf.push(msg) {
			p.log.Warn("mqtt buffer full, dropping oldest", zap.Int("capacity", p.buf.capacity))
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.publish(msg)
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// Buffered returns how many messages are waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
