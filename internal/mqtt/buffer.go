package mqtt

import (
	"log"
	"sync"
)

// DefaultBufferSize is the number of messages held while offline.
const DefaultBufferSize = 256

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that stores messages while disconnected.
// Not safe for concurrent use; outbox holds the lock.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	overflow bool // true if any message was dropped since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if r.count == r.capacity {
		if !r.overflow {
			log.Printf("mqtt: buffer full (%d messages), dropping oldest", r.capacity)
			r.overflow = true
		}
		// Overwrite oldest: head is already pointing at it
		r.buf[r.head] = msg
		r.head = (r.head + 1) % r.capacity
		// count stays at capacity
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
}

func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	result := make([]bufferedMsg, r.count)
	// Oldest item is at (head - count) mod capacity
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}

	r.count = 0
	r.head = 0
	r.overflow = false
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}

// outbox holds messages in a ring buffer while the uplink is switched off
// or the connection is down. While a drain is in progress new messages are
// held too, so they go out behind the older ones. Safe for concurrent use.
type outbox struct {
	mu       sync.Mutex
	uplink   bool
	draining bool
	buffer   *ringBuffer
}

func newOutbox(capacity int) *outbox {
	return &outbox{
		uplink: true,
		buffer: newRingBuffer(capacity),
	}
}

// hold buffers msg unless it can be sent now. It reports whether the
// message was buffered.
func (o *outbox) hold(msg bufferedMsg, connected bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.uplink && connected && !o.draining {
		return false
	}
	o.buffer.push(msg)
	return true
}

// requeue puts messages back behind anything already held.
func (o *outbox) requeue(msgs []bufferedMsg) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, m := range msgs {
		o.buffer.push(m)
	}
}

func (o *outbox) setUplink(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.uplink = on
}

// startDrain claims the drain. It fails if the uplink is off, the buffer
// is empty or another drain is running.
func (o *outbox) startDrain() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.uplink || o.draining || o.buffer.len() == 0 {
		return false
	}
	o.draining = true
	return true
}

// next returns the next batch for the running drain. It returns nil and
// ends the drain once the buffer is empty or the uplink is off.
func (o *outbox) next() []bufferedMsg {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.uplink {
		o.draining = false
		return nil
	}
	msgs := o.buffer.drainAll()
	if len(msgs) == 0 {
		o.draining = false
	}
	return msgs
}

// abort ends the running drain and puts unsent messages back ahead of
// anything held since.
func (o *outbox) abort(unsent []bufferedMsg) {
	o.mu.Lock()
	defer o.mu.Unlock()
	newer := o.buffer.drainAll()
	for _, m := range unsent {
		o.buffer.push(m)
	}
	for _, m := range newer {
		o.buffer.push(m)
	}
	o.draining = false
}

func (o *outbox) enabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.uplink
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buffer.len()
}
