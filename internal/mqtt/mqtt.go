// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/wrist-pager/internal/logic"
)

// Topic is the MQTT topic for page change events.
const Topic = "wrist/pager/events"

// TopicPose is the MQTT topic for the throttled orientation stream.
const TopicPose = "wrist/pager/pose"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "wrist/pager/system"

// TopicPeer is the MQTT topic carrying frames from the paired peer device.
const TopicPeer = "wrist/pager/peer"

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishPage sends a page change to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishPage(event PageEvent) error

	// PublishPose sends the current orientation (retained).
	PublishPose(event PoseEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Uplink gates outgoing traffic. While the uplink is off, messages are held
// in a bounded buffer and sent once it is switched back on.
type Uplink interface {
	SetUplink(on bool)
	UplinkEnabled() bool
	Buffered() int
}

// PeerLink manages the subscription to peer frames.
type PeerLink interface {
	SubscribePeer(handler func(payload []byte)) error
	UnsubscribePeer() error
}

// PageEvent is a page change with the time it fired.
type PageEvent struct {
	Timestamp time.Time
	Change    logic.PageChange
}

// PoseEvent is one orientation sample with the time it was taken.
type PoseEvent struct {
	Timestamp time.Time
	Sample    logic.Sample
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Page PagePayload `json:"page"`
}

// PagePayload contains the page change details.
type PagePayload struct {
	Timestamp  string `json:"timestamp"`
	Gesture    string `json:"gesture"`
	Index      int    `json:"index"`
	Previous   int    `json:"previous"`
	Direction  string `json:"direction"`
	DurationMs int    `json:"duration_ms"`
}

// FormatPayload creates the JSON payload for a page change.
func FormatPayload(event PageEvent) ([]byte, error) {
	payload := Payload{
		Page: PagePayload{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			Gesture:    string(event.Change.Gesture),
			Index:      event.Change.Page,
			Previous:   event.Change.Previous,
			Direction:  string(event.Change.Direction),
			DurationMs: event.Change.DurationMs,
		},
	}
	return json.Marshal(payload)
}

// PosePayload is the orientation stream payload, degrees to two decimals.
type PosePayload struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// FormatPosePayload creates the JSON payload for a pose sample.
func FormatPosePayload(event PoseEvent) ([]byte, error) {
	return json.Marshal(PosePayload{
		Roll:  round2(event.Sample.Roll),
		Pitch: round2(event.Sample.Pitch),
		Yaw:   round2(event.Sample.Yaw),
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// willEvent is registered as the last will: the broker publishes it if the
// connection drops without a clean disconnect.
func willEvent(now time.Time) SystemEvent {
	return SystemEvent{
		Timestamp: now,
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
		Retained:  true,
	}
}
