package logic

import "time"

// SwitchDetector tracks settings switches and detects debounced changes.
type SwitchDetector struct {
	debounceDuration time.Duration
	order            []SwitchID
	switches         map[SwitchID]*SwitchState
	baselined        bool
}

// NewSwitchDetector creates a detector for the given switches.
// Events are emitted in the order the switches are listed.
func NewSwitchDetector(debounceDuration time.Duration, ids ...SwitchID) *SwitchDetector {
	d := &SwitchDetector{
		debounceDuration: debounceDuration,
		order:            ids,
		switches:         make(map[SwitchID]*SwitchState, len(ids)),
	}
	for _, id := range ids {
		d.switches[id] = &SwitchState{}
	}
	return d
}

// Process takes a new reading of all switches and returns any events that
// should be applied. Switches missing from the reading keep their pending state.
// When the baseline is first established, one Initial event per switch is
// returned so the caller can apply the starting configuration.
func (d *SwitchDetector) Process(reading map[SwitchID]bool, now time.Time) []SwitchEvent {
	var events []SwitchEvent
	for _, id := range d.order {
		on, ok := reading[id]
		if !ok {
			continue
		}
		if d.processSwitch(d.switches[id], on, now) {
			events = append(events, SwitchEvent{Timestamp: now, Switch: id, On: on})
		}
	}

	if d.baselined {
		return events
	}

	for _, id := range d.order {
		if !d.switches[id].Baselined {
			return nil // No events until every switch is baselined
		}
	}
	d.baselined = true

	initial := make([]SwitchEvent, 0, len(d.order))
	for _, id := range d.order {
		initial = append(initial, SwitchEvent{
			Timestamp: now,
			Switch:    id,
			On:        d.switches[id].Stable,
			Initial:   true,
		})
	}
	return initial
}

// processSwitch handles debounce logic for a single switch.
// Returns true if a debounced transition occurred.
func (d *SwitchDetector) processSwitch(sw *SwitchState, on bool, now time.Time) bool {
	// First time seeing this switch
	if !sw.Baselined {
		if !sw.HasPending || sw.Pending != on {
			// Start observing, or state changed during baseline: restart
			sw.Pending = on
			sw.HasPending = true
			sw.PendingSince = now
			return false
		}

		if now.Sub(sw.PendingSince) >= d.debounceDuration {
			sw.Stable = on
			sw.Baselined = true
			sw.HasPending = false
		}
		return false
	}

	if on == sw.Stable {
		// No change from stable state, clear any pending
		sw.HasPending = false
		return false
	}

	if !sw.HasPending || sw.Pending != on {
		sw.Pending = on
		sw.HasPending = true
		sw.PendingSince = now
		return false
	}

	if now.Sub(sw.PendingSince) >= d.debounceDuration {
		sw.Stable = on
		sw.HasPending = false
		return true
	}

	return false
}

// IsBaselined returns whether every switch has a debounced baseline.
func (d *SwitchDetector) IsBaselined() bool {
	return d.baselined
}

// Current returns the stable state of a switch.
// Unknown or not yet baselined switches report false.
func (d *SwitchDetector) Current(id SwitchID) bool {
	sw, ok := d.switches[id]
	if !ok {
		return false
	}
	return sw.Stable
}
