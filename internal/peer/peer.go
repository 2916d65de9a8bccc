// Package peer decodes messages from the paired peer device.
//
// Frames are the little-endian memory image of the peer's C struct:
//
//	offset  size  field
//	0       32    text, NUL-terminated
//	32      4     int32
//	36      4     float32
//	40      1     bool
//	41      3     padding
package peer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"
)

const (
	textLen = 32

	// FrameSize is the size of an encoded frame including trailing padding.
	FrameSize = 44

	// minFrameSize is the smallest frame that carries every field.
	minFrameSize = 41
)

// ErrShortFrame is returned when a frame is too short to hold a message.
var ErrShortFrame = errors.New("peer: short frame")

// Message is one peer message.
type Message struct {
	Text  string  `json:"text"`
	Int   int32   `json:"int"`
	Float float32 `json:"float"`
	Bool  bool    `json:"bool"`
}

func (m Message) String() string {
	return fmt.Sprintf("text=%q int=%d float=%g bool=%t", m.Text, m.Int, m.Float, m.Bool)
}

// Decode parses a frame. Bytes past FrameSize are ignored.
func Decode(frame []byte) (Message, error) {
	if len(frame) < minFrameSize {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(frame))
	}

	text := frame[:textLen]
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}

	return Message{
		Text:  string(text),
		Int:   int32(binary.LittleEndian.Uint32(frame[32:36])),
		Float: math.Float32frombits(binary.LittleEndian.Uint32(frame[36:40])),
		Bool:  frame[40] != 0,
	}, nil
}

// Encode builds a frame. Text longer than 31 bytes is truncated so the
// field stays NUL-terminated.
func Encode(m Message) []byte {
	frame := make([]byte, FrameSize)
	copy(frame[:textLen-1], m.Text)
	binary.LittleEndian.PutUint32(frame[32:36], uint32(m.Int))
	binary.LittleEndian.PutUint32(frame[36:40], math.Float32bits(m.Float))
	if m.Bool {
		frame[40] = 1
	}
	return frame
}

// Receiver decodes incoming frames and hands valid messages to a callback.
// HandleFrame is safe to call from the MQTT client's goroutine.
type Receiver struct {
	onMessage func(Message)
	received  atomic.Uint64
	dropped   atomic.Uint64
}

// NewReceiver creates a receiver. onMessage may be nil.
func NewReceiver(onMessage func(Message)) *Receiver {
	return &Receiver{onMessage: onMessage}
}

// HandleFrame decodes one frame. Malformed frames are logged and dropped.
func (r *Receiver) HandleFrame(frame []byte) {
	msg, err := Decode(frame)
	if err != nil {
		r.dropped.Add(1)
		log.Printf("peer: dropped frame: %v", err)
		return
	}
	r.received.Add(1)
	log.Printf("peer: recv %s", msg)
	if r.onMessage != nil {
		r.onMessage(msg)
	}
}

// Stats returns the number of received and dropped frames.
func (r *Receiver) Stats() (received, dropped uint64) {
	return r.received.Load(), r.dropped.Load()
}
