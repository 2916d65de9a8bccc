package logic

import "math"

// Navigator classifies wrist-rock gestures from orientation samples and
// moves the page deck. It is driven by exactly one caller, once per tick.
type Navigator struct {
	params  Params
	state   GestureState
	deck    Deck
	enabled bool
	counts  GestureCounts
}

// NewNavigator creates a navigator over a deck of pageCount pages.
// Paging starts enabled.
func NewNavigator(params Params, pageCount int) *Navigator {
	if params.BaselineEvery == 0 {
		params.BaselineEvery = 1
	}
	return &Navigator{
		params:  params,
		deck:    NewDeck(pageCount),
		enabled: true,
	}
}

// Tick processes one orientation sample and returns a page change request
// if a gesture fired on this tick, nil otherwise.
func (n *Navigator) Tick(s Sample) *PageChange {
	st := &n.state
	st.IdleTicks++

	if st.PageChangeInProgress {
		st.CooldownTicks++
		if st.CooldownTicks >= n.params.CooldownTicks {
			st.PageChangeInProgress = false
			st.CooldownTicks = 0
		}
	}

	// A glitched sample must never fire a gesture or poison the baseline
	if !validSample(s) {
		n.counts.Invalid++
		return nil
	}

	if !st.HasBaseline {
		st.LastRoll = s.Roll
		st.LastYaw = s.Yaw
		st.HasBaseline = true
		return nil
	}

	var change *PageChange
	if n.enabled && !st.PageChangeInProgress && n.inPitchBand(s.Pitch) {
		n.classify(s)
		n.arm()
		change = n.confirm()
	}

	if n.params.IdleResetTicks > 0 && st.IdleTicks >= n.params.IdleResetTicks &&
		rollDelta(st.LastRoll, s.Roll) < n.params.IdleRollStable {
		st.IdleTicks = 0
		n.clearGesture()
		n.counts.IdleResets++
	}

	if st.IdleTicks%n.params.BaselineEvery == 0 {
		st.LastRoll = s.Roll
		st.LastYaw = s.Yaw
	}

	return change
}

// classify updates the rotation counters from the delta against the baseline.
func (n *Navigator) classify(s Sample) {
	st := &n.state
	if rollDelta(st.LastRoll, s.Roll) <= n.params.RollThreshold {
		return
	}
	yawDelta := math.Abs(st.LastYaw - s.Yaw)
	if yawDelta < n.params.YawDeltaMin || yawDelta > n.params.YawDeltaMax {
		return
	}

	switch {
	case s.Roll > st.LastRoll:
		st.LeftCount++
		if st.LeftCount >= n.params.ConfirmCount {
			st.RightCount = 0
		}
	case s.Roll < st.LastRoll:
		st.RightCount++
		if st.RightCount >= n.params.ConfirmCount {
			st.LeftCount = 0
		}
	}
}

// arm primes one direction once its counter reaches ArmCount.
func (n *Navigator) arm() {
	st := &n.state
	if st.LeftArmed || st.RightArmed {
		return
	}
	if st.RightCount >= n.params.ArmCount {
		st.RightArmed = true
		st.LeftCount = 0
		st.RightCount = 0
	} else if st.LeftCount >= n.params.ArmCount {
		st.LeftArmed = true
		st.LeftCount = 0
		st.RightCount = 0
	}
}

// confirm fires an armed gesture when the opposite rotation follows it.
func (n *Navigator) confirm() *PageChange {
	st := &n.state
	switch {
	case st.LeftArmed && st.RightCount >= n.params.ConfirmCount:
		st.LeftArmed = false
		st.RightArmed = false
		n.deck.Prev()
		n.counts.Left++
		return n.startPageChange(GestureLeft, MoveRight)
	case st.RightArmed && st.LeftCount >= n.params.ConfirmCount:
		st.LeftArmed = false
		st.RightArmed = false
		n.deck.Next()
		n.counts.Right++
		return n.startPageChange(GestureRight, MoveLeft)
	}
	return nil
}

func (n *Navigator) startPageChange(g Gesture, dir Direction) *PageChange {
	n.state.PageChangeInProgress = true
	n.state.CooldownTicks = 0
	return &PageChange{
		Gesture:    g,
		Page:       n.deck.Current,
		Previous:   n.deck.Previous,
		Direction:  dir,
		DurationMs: n.params.TransitionMs,
	}
}

func (n *Navigator) clearGesture() {
	n.state.LeftCount = 0
	n.state.RightCount = 0
	n.state.LeftArmed = false
	n.state.RightArmed = false
}

// inPitchBand reports whether the pitch lies inside one of the two bands
// where roll and yaw are reliable.
func (n *Navigator) inPitchBand(pitch float64) bool {
	lo, hi := n.params.PitchBandMin, n.params.PitchBandMax
	return (pitch > lo && pitch < hi) || (pitch > -hi && pitch < -lo)
}

// SetEnabled turns gesture paging on or off.
// Baseline and idle bookkeeping keep running while disabled.
func (n *Navigator) SetEnabled(on bool) {
	n.enabled = on
}

// Enabled reports whether gesture paging is on.
func (n *Navigator) Enabled() bool {
	return n.enabled
}

// State returns a copy of the classifier state.
func (n *Navigator) State() GestureState {
	return n.state
}

// Deck returns a copy of the page index.
func (n *Navigator) Deck() Deck {
	return n.deck
}

// Counts returns a copy of the activity counters.
func (n *Navigator) Counts() GestureCounts {
	return n.counts
}

// Params returns the thresholds in use.
func (n *Navigator) Params() Params {
	return n.params
}

// rollDelta is the absolute difference of the whole-degree parts of two rolls.
func rollDelta(last, roll float64) float64 {
	return math.Abs(math.Trunc(last) - math.Trunc(roll))
}

func validSample(s Sample) bool {
	for _, v := range []float64{s.Roll, s.Pitch, s.Yaw} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return s.Roll >= -180 && s.Roll <= 180 &&
		s.Pitch >= -90 && s.Pitch <= 90 &&
		s.Yaw >= 0 && s.Yaw <= 360
}
