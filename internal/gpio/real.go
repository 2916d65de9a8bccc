//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/wrist-pager/internal/logic"
)

// RealReader reads switches from actual hardware using the Linux GPIO
// character device.
type RealReader struct {
	chip  *gpiocdev.Chip
	ids   []logic.SwitchID
	lines map[logic.SwitchID]*gpiocdev.Line
}

// NewRealReader requests one input line per switch. Pins below zero are skipped.
func NewRealReader(chipName string, pins map[logic.SwitchID]int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealReader{
		chip:  chip,
		lines: make(map[logic.SwitchID]*gpiocdev.Line),
	}
	for _, id := range sortedIDs(pins) {
		pin := pins[id]
		if pin < 0 {
			continue
		}
		// Switches close to ground; pull-up keeps an open switch inactive-high.
		line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", id, pin, err)
		}
		r.ids = append(r.ids, id)
		r.lines[id] = line
	}
	return r, nil
}

// Read returns the logical switch states.
// Raw 0 (switch closed to ground) = ON, raw 1 = OFF.
func (r *RealReader) Read() (map[logic.SwitchID]bool, error) {
	out := make(map[logic.SwitchID]bool, len(r.ids))
	for _, id := range r.ids {
		raw, err := r.lines[id].Value()
		if err != nil {
			return nil, fmt.Errorf("read %s pin: %w", id, err)
		}
		out[id] = raw == 0
	}
	return out, nil
}

// Close releases GPIO resources.
// Lines are reconfigured to input with pull-down (Pi boot default) before
// closing so the pins are left in a clean state for reboot.
func (r *RealReader) Close() error {
	var errs []error

	for _, id := range r.ids {
		line := r.lines[id]
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", id, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", id, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
