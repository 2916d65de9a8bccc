package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Config holds broker connection settings.
type Config struct {
	Broker     string
	ClientID   string
	BufferSize int
}

// RealPublisher publishes to an actual MQTT broker.
// Connection is established in the background and retried forever;
// messages published while offline are buffered and replayed.
type RealPublisher struct {
	client   paho.Client
	outbox   *outbox
	now      func() time.Time
	connects atomic.Int32

	mu          sync.Mutex
	peerHandler func([]byte)
}

// NewRealPublisher creates a publisher for the given broker and starts
// connecting. It does not wait for the connection.
func NewRealPublisher(cfg Config) *RealPublisher {
	if cfg.ClientID == "" {
		cfg.ClientID = "wrist-pager"
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	p := &RealPublisher{
		outbox: newOutbox(cfg.BufferSize),
		now:    time.Now,
	}

	will, _ := FormatSystemPayload(willEvent(time.Now()))

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	log.Printf("mqtt: connecting to %s as %s", cfg.Broker, cfg.ClientID)
	return p
}

// newPublisherWithClient wires a publisher around an existing client.
func newPublisherWithClient(client paho.Client, bufferSize int, now func() time.Time) *RealPublisher {
	return &RealPublisher{
		client: client,
		outbox: newOutbox(bufferSize),
		now:    now,
	}
}

// onConnect runs on every (re)connection, on paho's goroutine.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	handler := p.peerHandler
	p.mu.Unlock()
	if handler != nil {
		if err := p.subscribe(handler); err != nil {
			log.Printf("mqtt: resubscribe peer: %v", err)
		}
	}

	// Claimed before RECONNECTED so the event queues behind held messages.
	draining := p.outbox.startDrain()

	if n := p.connects.Add(1); n == 1 {
		log.Printf("mqtt: connected")
	} else {
		log.Printf("mqtt: reconnected")
		if err := p.PublishSystem(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"}); err != nil {
			log.Printf("mqtt: reconnected event: %v", err)
		}
	}

	if draining {
		p.drain()
	}
}

// PublishPage sends a page change to the MQTT broker.
func (p *RealPublisher) PublishPage(event PageEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: Topic, payload: payload})
}

// PublishPose sends an orientation sample to the MQTT broker.
func (p *RealPublisher) PublishPose(event PoseEvent) error {
	payload, err := FormatPosePayload(event)
	if err != nil {
		return fmt.Errorf("format pose payload: %w", err)
	}
	// Retained so late subscribers see the current pose
	return p.publish(bufferedMsg{topic: TopicPose, payload: payload, retained: true})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	if p.outbox.hold(msg, p.client.IsConnectionOpen()) {
		return nil
	}
	if err := p.send(msg); err != nil {
		p.outbox.requeue([]bufferedMsg{msg})
		return err
	}
	return nil
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// drain sends held messages oldest first until the buffer is empty. The
// caller must have claimed the drain with startDrain. On the first failure
// the unsent messages go back to the front of the buffer.
func (p *RealPublisher) drain() {
	sent := 0
	for msgs := p.outbox.next(); msgs != nil; msgs = p.outbox.next() {
		for i, msg := range msgs {
			if err := p.send(msg); err != nil {
				log.Printf("mqtt: flush stopped after %d messages: %v", sent, err)
				p.outbox.abort(msgs[i:])
				return
			}
			sent++
		}
	}
	if sent > 0 {
		log.Printf("mqtt: flushed %d buffered messages", sent)
	}
}

// SetUplink switches the uplink. Turning it on starts flushing held
// messages in the background if the broker is reachable; SetUplink itself
// does not wait for the broker.
func (p *RealPublisher) SetUplink(on bool) {
	p.outbox.setUplink(on)
	if !on {
		log.Printf("mqtt: uplink off, buffering")
		return
	}
	log.Printf("mqtt: uplink on")
	if p.client.IsConnectionOpen() && p.outbox.startDrain() {
		go p.drain()
	}
}

// UplinkEnabled reports whether the uplink is on.
func (p *RealPublisher) UplinkEnabled() bool {
	return p.outbox.enabled()
}

// Buffered returns the number of held messages.
func (p *RealPublisher) Buffered() int {
	return p.outbox.len()
}

// SubscribePeer subscribes to peer frames. The subscription is restored
// after reconnects until UnsubscribePeer is called.
func (p *RealPublisher) SubscribePeer(handler func(payload []byte)) error {
	if handler == nil {
		return errors.New("mqtt: nil peer handler")
	}
	p.mu.Lock()
	p.peerHandler = handler
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		// onConnect subscribes once the connection is up
		return nil
	}
	return p.subscribe(handler)
}

func (p *RealPublisher) subscribe(handler func([]byte)) error {
	token := p.client.Subscribe(TopicPeer, 0, func(_ paho.Client, m paho.Message) {
		handler(m.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s timeout", TopicPeer)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicPeer, err)
	}
	return nil
}

// UnsubscribePeer removes the peer subscription.
func (p *RealPublisher) UnsubscribePeer() error {
	p.mu.Lock()
	p.peerHandler = nil
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		return nil
	}
	token := p.client.Unsubscribe(TopicPeer)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("unsubscribe %s timeout", TopicPeer)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", TopicPeer, err)
	}
	return nil
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if n := p.outbox.len(); n > 0 {
		log.Printf("mqtt: closing with %d unsent messages", n)
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
