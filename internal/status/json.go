package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Ready         bool            `json:"ready"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	Page          PageJSON        `json:"page"`
	LastChange    *LastChangeJSON `json:"last_change,omitempty"`
	Gesture       GestureJSON     `json:"gesture"`
	Pose          *PoseJSON       `json:"pose,omitempty"`
	Switches      SwitchesJSON    `json:"switches"`
	Counts        CountsJSON      `json:"gesture_counts"`
	MQTT          MQTTStatus      `json:"mqtt"`
	Peer          *PeerJSON       `json:"peer,omitempty"`
	PeerFrames    PeerFramesJSON  `json:"peer_frames"`
	Network       *NetworkJSON    `json:"network,omitempty"`
	Config        ConfigJSON      `json:"config"`
}

// PageJSON reports the page deck.
type PageJSON struct {
	Index        int    `json:"index"`
	Previous     int    `json:"previous"`
	Count        int    `json:"count"`
	Name         string `json:"name,omitempty"`
	Enabled      bool   `json:"paging_enabled"`
	InTransition bool   `json:"in_transition"`
}

// LastChangeJSON reports the most recent page change.
type LastChangeJSON struct {
	Timestamp string `json:"timestamp"`
	Gesture   string `json:"gesture"`
	Index     int    `json:"index"`
	Previous  int    `json:"previous"`
	Direction string `json:"direction"`
}

// GestureJSON reports the classifier state.
type GestureJSON struct {
	LeftCount     uint8 `json:"left_count"`
	RightCount    uint8 `json:"right_count"`
	LeftArmed     bool  `json:"left_armed"`
	RightArmed    bool  `json:"right_armed"`
	IdleTicks     uint  `json:"idle_ticks"`
	CooldownTicks uint  `json:"cooldown_ticks"`
}

// PoseJSON is the last orientation sample.
type PoseJSON struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// SwitchesJSON reports the settings switches.
type SwitchesJSON struct {
	Ready    bool   `json:"ready"`
	Paging   string `json:"paging"`
	WiFi     string `json:"wifi"`
	PeerLink string `json:"peer_link"`
}

// CountsJSON is the JSON representation of gesture counts.
type CountsJSON struct {
	Left       int `json:"left"`
	Right      int `json:"right"`
	IdleResets int `json:"idle_resets"`
	Invalid    int `json:"invalid"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Uplink    bool   `json:"uplink"`
	Buffered  int    `json:"buffered"`
}

// PeerJSON is the last peer message.
type PeerJSON struct {
	Text       string  `json:"text"`
	Int        int32   `json:"int"`
	Float      float32 `json:"float"`
	Bool       bool    `json:"bool"`
	ReceivedAt string  `json:"received_at"`
}

// PeerFramesJSON counts peer frames since startup.
type PeerFramesJSON struct {
	Received uint64 `json:"received"`
	Dropped  uint64 `json:"dropped"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
	RSSI       *int   `json:"rssi,omitempty"`
	Bars       *int   `json:"signal_bars,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	DebounceMs  int64  `json:"debounce_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	Source      string `json:"source"`
	PoseEvery   int    `json:"pose_every"`
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func buildInner(snap Snapshot) StatusInner {
	nav := snap.Nav
	inner := StatusInner{
		Ready:         snap.SwitchesReady && snap.HavePose,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Page: PageJSON{
			Index:        nav.Deck.Current,
			Previous:     nav.Deck.Previous,
			Count:        nav.Deck.Count,
			Name:         snap.PageName(),
			Enabled:      nav.Enabled,
			InTransition: nav.Gesture.PageChangeInProgress,
		},
		Gesture: GestureJSON{
			LeftCount:     nav.Gesture.LeftCount,
			RightCount:    nav.Gesture.RightCount,
			LeftArmed:     nav.Gesture.LeftArmed,
			RightArmed:    nav.Gesture.RightArmed,
			IdleTicks:     nav.Gesture.IdleTicks,
			CooldownTicks: nav.Gesture.CooldownTicks,
		},
		Switches: SwitchesJSON{
			Ready:    snap.SwitchesReady,
			Paging:   onOff(snap.Switches.Paging),
			WiFi:     onOff(snap.Switches.WiFi),
			PeerLink: onOff(snap.Switches.PeerLink),
		},
		Counts: CountsJSON{
			Left:       nav.Counts.Left,
			Right:      nav.Counts.Right,
			IdleResets: nav.Counts.IdleResets,
			Invalid:    nav.Counts.Invalid,
		},
		MQTT: MQTTStatus{
			Connected: snap.MQTT.Connected,
			Broker:    snap.Config.Broker,
			Uplink:    snap.MQTT.Uplink,
			Buffered:  snap.MQTT.Buffered,
		},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			DebounceMs:  snap.Config.DebounceMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			Source:      snap.Config.Source,
			PoseEvery:   snap.Config.PoseEvery,
		},
	}

	if snap.HavePose {
		inner.Pose = &PoseJSON{Roll: nav.Pose.Roll, Pitch: nav.Pose.Pitch, Yaw: nav.Pose.Yaw}
	}
	if lc := snap.LastChange; lc != nil {
		inner.LastChange = &LastChangeJSON{
			Timestamp: lc.Timestamp.UTC().Format(time.RFC3339),
			Gesture:   string(lc.Change.Gesture),
			Index:     lc.Change.Page,
			Previous:  lc.Change.Previous,
			Direction: string(lc.Change.Direction),
		}
	}
	if p := snap.Peer; p != nil {
		inner.Peer = &PeerJSON{
			Text:       p.Text,
			Int:        p.Int,
			Float:      p.Float,
			Bool:       p.Bool,
			ReceivedAt: p.ReceivedAt.UTC().Format(time.RFC3339),
		}
	}
	inner.PeerFrames = PeerFramesJSON{Received: snap.PeerFrames.Received, Dropped: snap.PeerFrames.Dropped}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
		if snap.Network.RSSI != nil {
			rssi := *snap.Network.RSSI
			bars := SignalBars(rssi)
			inner.Network.RSSI = &rssi
			inner.Network.Bars = &bars
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatCompactJSON returns the web status without indentation, for the
// websocket feed.
func FormatCompactJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
