package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 100

// Options configures a RealPublisher.
type Options struct {
	Broker      string
	ClientID    string // empty = "fuel-kiosk-" + random suffix
	TopicPrefix string
	BufferSize  int

	// OnConnectionChange, if set, is called on every connect and connection loss.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed, oldest first, on
// reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	log    *zap.Logger

	mu        sync.Mutex
	buf       *outbox
	connected bool
	replaying bool // new publishes queue behind the outbox until it is flushed
	everUp    bool
	onChange  func(bool)
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// is not reachable within the connect timeout the publisher is still
// returned; paho keeps retrying in the background.
func NewRealPublisher(opts Options, log *zap.Logger) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("no broker configured")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ClientID == "" {
		opts.ClientID = "fuel-kiosk-" + uuid.NewString()[:8]
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	p := &RealPublisher{
		topics:   NewTopics(opts.TopicPrefix),
		log:      log.With(zap.String("broker", opts.Broker)),
		onChange: opts.OnConnectionChange,
	}
	p.buf = newOutbox(opts.BufferSize, p.log)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.System, string(will), 1, true).
		SetOnConnectHandler(p.handleConnect).
		SetConnectionLostHandler(p.handleConnectionLost)

	p.client = paho.NewClient(clientOpts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.log.Warn("mqtt connect timed out, retrying in background")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// handleConnect runs on its own goroutine (paho starts it), so it may block
// on publishes.
func (p *RealPublisher) handleConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everUp
	p.connected = true
	p.replaying = true
	p.everUp = true
	pending := p.buf.drainAll()
	p.mu.Unlock()

	p.log.Info("mqtt connected", zap.Bool("reconnect", reconnect), zap.Int("buffered", len(pending)))
	if p.onChange != nil {
		p.onChange(true)
	}

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		pending = append(pending, bufferedMsg{topic: p.topics.System, payload: payload, qos: 1})
	}
	p.replay(pending)
}

// replay sends pending in order, then keeps draining whatever was published
// meanwhile. replaying is cleared under the same lock as the final empty
// drain, so no publish can overtake a buffered message on the same topic.
// If the connection drops mid-replay the unsent tail goes back to the front
// of the outbox for the next connect.
func (p *RealPublisher) replay(pending []bufferedMsg) {
	for {
		for i, m := range pending {
			err := p.send(m)
			if err == nil {
				continue
			}
			if !p.client.IsConnectionOpen() {
				p.mu.Lock()
				p.buf.requeue(pending[i:])
				p.replaying = false
				p.mu.Unlock()
				p.log.Warn("replay interrupted", zap.Int("requeued", len(pending)-i), zap.Error(err))
				return
			}
			p.log.Warn("replay failed, dropping message", zap.String("topic", m.topic), zap.Error(err))
		}

		p.mu.Lock()
		pending = p.buf.drainAll()
		if len(pending) == 0 {
			p.replaying = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

func (p *RealPublisher) handleConnectionLost(c paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	p.log.Warn("mqtt connection lost", zap.Error(err))
	if p.onChange != nil {
		p.onChange(false)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// PublishSession sends a session (QoS 1, not retained).
func (p *RealPublisher) PublishSession(event SessionEvent) error {
	payload, err := FormatSessionPayload(event)
	if err != nil {
		return fmt.Errorf("format session payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.Sessions, payload: payload, qos: 1})
}

// PublishStatus sends the status text (QoS 0, retained).
func (p *RealPublisher) PublishStatus(event StatusEvent) error {
	payload, err := FormatStatusPayload(event)
	if err != nil {
		return fmt.Errorf("format status payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.Status, payload: payload, qos: 0, retained: true})
}

// PublishSystem sends a system lifecycle event to the MQTT broker (QoS 1).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// publish buffers m while disconnected or while a replay is in flight.
// A send that fails on a live connection is dropped, not buffered: paho may
// still deliver a timed-out QoS 1 message itself, and the ledger keeps every
// session regardless.
func (p *RealPublisher) publish(m bufferedMsg) error {
	p.mu.Lock()
	if !p.connected || p.replaying {
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	dropped := p.buf.len()
	p.mu.Unlock()
	if dropped > 0 {
		p.log.Warn("closing with unsent messages", zap.Int("count", dropped))
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
