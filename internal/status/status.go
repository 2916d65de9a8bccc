// Package status provides a thread-safe status tracker for the wrist-pager daemon.
// It is read by the HTTP handlers, the websocket feed and lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/wrist-pager/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
	RSSI       *int // dBm, nil when unknown
}

// SignalBars maps a WiFi RSSI in dBm to a 0-4 bar indicator.
func SignalBars(rssi int) int {
	switch {
	case rssi >= -20:
		return 4
	case rssi >= -40:
		return 3
	case rssi >= -80:
		return 2
	case rssi >= -100:
		return 1
	default:
		return 0
	}
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs      int64
	DebounceMs  int64
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
	Source      string
	PoseEvery   int
	PageNames   []string // one per page, read-only after construction
}

// SwitchStates holds the debounced settings switches.
type SwitchStates struct {
	Paging   bool
	WiFi     bool
	PeerLink bool
}

// NavState is the navigator view copied into the tracker each tick.
type NavState struct {
	Deck    logic.Deck
	Enabled bool
	Gesture logic.GestureState
	Counts  logic.GestureCounts
	Pose    logic.Sample
}

// PageChangeRecord is the most recent page change.
type PageChangeRecord struct {
	Timestamp time.Time
	Change    logic.PageChange
}

// PeerMessage is the last message received from the peer device. This is a
// local copy to avoid importing internal/peer from status.
type PeerMessage struct {
	Text       string
	Int        int32
	Float      float32
	Bool       bool
	ReceivedAt time.Time
}

// PeerStats counts peer frames since startup.
type PeerStats struct {
	Received uint64
	Dropped  uint64
}

// MQTTState reports the broker connection and uplink.
type MQTTState struct {
	Connected bool
	Uplink    bool
	Buffered  int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Nav           NavState
	HavePose      bool
	LastChange    *PageChangeRecord
	Switches      SwitchStates
	SwitchesReady bool
	Peer          *PeerMessage
	PeerFrames    PeerStats
	StartTime     time.Time
	Now           time.Time
	MQTT          MQTTState
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// PageName returns the name of the current page, or "" if unnamed.
func (s Snapshot) PageName() string {
	return s.pageName(s.Nav.Deck.Current)
}

func (s Snapshot) pageName(i int) string {
	if i < 0 || i >= len(s.Config.PageNames) {
		return ""
	}
	return s.Config.PageNames[i]
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			MQTT:      MQTTState{Uplink: true},
		},
	}
}

// Update sets the navigator view.
// Called from runLoop on every tick.
func (t *Tracker) Update(nav NavState) {
	t.mu.Lock()
	t.snap.Nav = nav
	t.snap.HavePose = true
	t.mu.Unlock()
}

// RecordPageChange stores the most recent page change.
func (t *Tracker) RecordPageChange(ts time.Time, change logic.PageChange) {
	rec := &PageChangeRecord{Timestamp: ts, Change: change}
	t.mu.Lock()
	t.snap.LastChange = rec
	t.mu.Unlock()
}

// SetSwitches sets the debounced switch states.
func (t *Tracker) SetSwitches(states map[logic.SwitchID]bool, ready bool) {
	t.mu.Lock()
	t.snap.Switches = SwitchStates{
		Paging:   states[logic.SwitchPaging],
		WiFi:     states[logic.SwitchWiFi],
		PeerLink: states[logic.SwitchPeerLink],
	}
	t.snap.SwitchesReady = ready
	t.mu.Unlock()
}

// SetPeerMessage stores the last peer message. Safe to call from the MQTT
// client's goroutine.
func (t *Tracker) SetPeerMessage(msg PeerMessage) {
	t.mu.Lock()
	t.snap.Peer = &msg
	t.mu.Unlock()
}

// SetPeerStats records the peer frame counters. Safe to call from the MQTT
// client's goroutine.
func (t *Tracker) SetPeerStats(received, dropped uint64) {
	t.mu.Lock()
	t.snap.PeerFrames = PeerStats{Received: received, Dropped: dropped}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTT.Connected = connected
	t.mu.Unlock()
}

// SetUplink sets the uplink switch state and the number of held messages.
func (t *Tracker) SetUplink(on bool, buffered int) {
	t.mu.Lock()
	t.snap.MQTT.Uplink = on
	t.snap.MQTT.Buffered = buffered
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
