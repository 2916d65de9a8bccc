// Package logic contains the pure gesture and page-navigation logic.
// This package has NO external dependencies (no GPIO, MQTT, sensors, OS, or time.Sleep).
// Ticks are counted by the caller; wall time is always injectable via time.Time parameters.
package logic

import "time"

// Sample is one fused orientation reading in degrees.
// Roll is in [-180,180], Pitch in [-90,90], Yaw in [0,360].
type Sample struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Direction is the transition animation requested from the page deck.
type Direction string

const (
	MoveLeft  Direction = "MOVE_LEFT"
	MoveRight Direction = "MOVE_RIGHT"
)

// Gesture identifies which page gesture fired.
type Gesture string

const (
	GestureLeft  Gesture = "LEFT"
	GestureRight Gesture = "RIGHT"
)

// PageChange is a request for the page deck to load a page.
type PageChange struct {
	Gesture    Gesture
	Page       int
	Previous   int
	Direction  Direction
	DurationMs int
}

// GestureState is the classifier state carried across ticks.
type GestureState struct {
	// Rotation baseline, refreshed every BaselineEvery ticks
	LastRoll float64
	LastYaw  float64
	// Whether a baseline has been taken yet
	HasBaseline bool

	LeftCount  uint8
	RightCount uint8

	// At most one of these is true
	LeftArmed  bool
	RightArmed bool

	// Ticks since the last idle reset
	IdleTicks uint

	// Cooldown after a page change; no gesture may fire while active
	PageChangeInProgress bool
	CooldownTicks        uint
}

// Params holds the classifier thresholds. The defaults are tuned for a
// Madgwick filter fed by a wrist IMU at 50Hz.
type Params struct {
	// Gimbal guard: pitch must lie strictly inside one of the two bands
	PitchBandMin float64
	PitchBandMax float64

	// Minimum truncated roll delta (exclusive) for a rotation tick
	RollThreshold float64
	// Yaw delta band (inclusive) for a rotation tick
	YawDeltaMin float64
	YawDeltaMax float64

	// Counter value that arms a direction
	ArmCount uint8
	// Opposite-direction counter value that confirms an armed gesture
	// and suppresses the other counter
	ConfirmCount uint8

	// Idle ticks before stale counters are cleared
	IdleResetTicks uint
	// Roll delta (exclusive) considered stable for the idle reset
	IdleRollStable float64
	// Baseline refresh period in ticks
	BaselineEvery uint
	// Ticks a page change blocks new gestures
	CooldownTicks uint
	// Transition duration passed to the page deck
	TransitionMs int
}

// DefaultParams returns the thresholds used on the device.
func DefaultParams() Params {
	return Params{
		PitchBandMin:   50,
		PitchBandMax:   85,
		RollThreshold:  2,
		YawDeltaMin:    5,
		YawDeltaMax:    9,
		ArmCount:       3,
		ConfirmCount:   2,
		IdleResetTicks: 100,
		IdleRollStable: 2,
		BaselineEvery:  5,
		CooldownTicks:  100,
		TransitionMs:   350,
	}
}

// GestureCounts tracks navigator activity since startup.
type GestureCounts struct {
	Left       int
	Right      int
	IdleResets int
	Invalid    int
}

// SwitchID names a settings toggle.
type SwitchID string

const (
	SwitchPaging   SwitchID = "PAGING"
	SwitchWiFi     SwitchID = "WIFI"
	SwitchPeerLink SwitchID = "PEER_LINK"
)

// SwitchEvent is a debounced switch change.
type SwitchEvent struct {
	Timestamp time.Time
	Switch    SwitchID
	On        bool
	// Initial is set for the events emitted when the baseline is established
	Initial bool
}

// SwitchState tracks debounce state for a single switch.
type SwitchState struct {
	// Current stable (debounced) state
	Stable bool
	// Pending state during debounce
	Pending bool
	// Whether Pending holds an observation
	HasPending bool
	// Time when pending state was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    GestureCounts
}
