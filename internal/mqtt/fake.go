package mqtt

import "errors"

// SentMessage is a message the fake delivered to its imaginary broker.
type SentMessage struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	// Pages contains all page changes that were published.
	Pages []PageEvent

	// Payloads contains the JSON payloads for page changes.
	Payloads [][]byte

	// Poses contains all pose samples that were published.
	Poses []PoseEvent

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// Sent contains every message that passed the uplink, in order.
	Sent []SentMessage

	// PublishError, if set, will be returned by PublishPage and PublishPose.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// SubscribeError, if set, will be returned by SubscribePeer.
	SubscribeError error

	// PeerHandler is the handler registered by SubscribePeer (nil when unsubscribed).
	PeerHandler func(payload []byte)

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	outbox     *outbox
	bufferSize int
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{
		outbox:     newOutbox(DefaultBufferSize),
		bufferSize: DefaultBufferSize,
	}
}

// NewFakePublisherWithBuffer creates a FakePublisher holding at most size
// messages while the uplink is off.
func NewFakePublisherWithBuffer(size int) *FakePublisher {
	return &FakePublisher{
		outbox:     newOutbox(size),
		bufferSize: size,
	}
}

// PublishPage records the page change.
func (f *FakePublisher) PublishPage(event PageEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Pages = append(f.Pages, event)
	f.Payloads = append(f.Payloads, payload)
	f.deliver(bufferedMsg{topic: Topic, payload: payload})
	return nil
}

// PublishPose records the pose sample.
func (f *FakePublisher) PublishPose(event PoseEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPosePayload(event)
	if err != nil {
		return err
	}
	f.Poses = append(f.Poses, event)
	f.deliver(bufferedMsg{topic: TopicPose, payload: payload, retained: true})
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	f.deliver(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
	return nil
}

func (f *FakePublisher) deliver(msg bufferedMsg) {
	if f.outbox.hold(msg, true) {
		return
	}
	f.Sent = append(f.Sent, sentFrom(msg))
}

func sentFrom(msg bufferedMsg) SentMessage {
	return SentMessage{Topic: msg.topic, Payload: msg.payload, QoS: msg.qos, Retained: msg.retained}
}

// SetUplink switches the uplink; turning it on delivers held messages.
func (f *FakePublisher) SetUplink(on bool) {
	f.outbox.setUplink(on)
	if !on || !f.outbox.startDrain() {
		return
	}
	for msgs := f.outbox.next(); msgs != nil; msgs = f.outbox.next() {
		for _, msg := range msgs {
			f.Sent = append(f.Sent, sentFrom(msg))
		}
	}
}

// UplinkEnabled reports whether the uplink is on.
func (f *FakePublisher) UplinkEnabled() bool {
	return f.outbox.enabled()
}

// Buffered returns the number of held messages.
func (f *FakePublisher) Buffered() int {
	return f.outbox.len()
}

// SubscribePeer records the handler.
func (f *FakePublisher) SubscribePeer(handler func(payload []byte)) error {
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	if handler == nil {
		return errors.New("mqtt: nil peer handler")
	}
	f.PeerHandler = handler
	return nil
}

// UnsubscribePeer clears the handler.
func (f *FakePublisher) UnsubscribePeer() error {
	f.PeerHandler = nil
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.Pages = nil
	f.Payloads = nil
	f.Poses = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Sent = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.SubscribeError = nil
	f.PeerHandler = nil
	f.Connected = false
	f.outbox = newOutbox(f.bufferSize)
}
