// Package gpio reads the settings switches (paging, WiFi, peer link).
// The real implementation uses the Linux GPIO character device.
// Static and fake implementations allow running without hardware.
package gpio

import (
	"sort"

	"github.com/sweeney/wrist-pager/internal/logic"
)

// Reader reads switch states.
type Reader interface {
	// Read returns the logical state of every switch the reader owns.
	// Switches are wired to ground: raw inactive = logical ON.
	Read() (map[logic.SwitchID]bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Default pin assignments (BCM numbering). -1 means not wired.
const (
	PinPaging   = 26
	PinWiFi     = 16
	PinPeerLink = -1
)

// StaticReader reports fixed switch states. It stands in for switches that
// are not wired to a pin.
type StaticReader struct {
	states map[logic.SwitchID]bool
}

// NewStaticReader creates a reader that always returns states.
func NewStaticReader(states map[logic.SwitchID]bool) *StaticReader {
	cp := make(map[logic.SwitchID]bool, len(states))
	for id, on := range states {
		cp[id] = on
	}
	return &StaticReader{states: cp}
}

// Read returns a copy of the fixed states.
func (s *StaticReader) Read() (map[logic.SwitchID]bool, error) {
	out := make(map[logic.SwitchID]bool, len(s.states))
	for id, on := range s.states {
		out[id] = on
	}
	return out, nil
}

// Close is a no-op.
func (s *StaticReader) Close() error {
	return nil
}

// MultiReader merges the readings of several readers. Later readers win
// when two report the same switch.
type MultiReader struct {
	readers []Reader
}

// NewMultiReader combines readers.
func NewMultiReader(readers ...Reader) *MultiReader {
	return &MultiReader{readers: readers}
}

// Read merges every reader's states. The first error aborts the read.
func (m *MultiReader) Read() (map[logic.SwitchID]bool, error) {
	out := make(map[logic.SwitchID]bool)
	for _, r := range m.readers {
		states, err := r.Read()
		if err != nil {
			return nil, err
		}
		for id, on := range states {
			out[id] = on
		}
	}
	return out, nil
}

// Close closes every reader and returns the first error.
func (m *MultiReader) Close() error {
	var first error
	for _, r := range m.readers {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// sortedIDs returns the switch ids of pins in a stable order.
func sortedIDs(pins map[logic.SwitchID]int) []logic.SwitchID {
	ids := make([]logic.SwitchID, 0, len(pins))
	for id := range pins {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
