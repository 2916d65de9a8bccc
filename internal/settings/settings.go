// Package settings dispatches switch transitions to their effects.
package settings

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/wrist-pager/internal/logic"
)

// ErrUnknownSwitch is returned when no effect is registered for a switch.
var ErrUnknownSwitch = errors.New("settings: unknown switch")

// Effect applies the enabled/disabled state of one setting.
type Effect func(on bool) error

// Table maps each switch to the effect it controls.
type Table struct {
	mu      sync.Mutex
	effects map[logic.SwitchID]Effect
	applied map[logic.SwitchID]bool
}

// NewTable creates an empty dispatch table.
func NewTable() *Table {
	return &Table{
		effects: make(map[logic.SwitchID]Effect),
		applied: make(map[logic.SwitchID]bool),
	}
}

// Register sets the effect for id, replacing any previous one.
func (t *Table) Register(id logic.SwitchID, effect Effect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.effects[id] = effect
}

// Apply runs the effect registered for id.
func (t *Table) Apply(id logic.SwitchID, on bool) error {
	t.mu.Lock()
	effect, ok := t.effects[id]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSwitch, id)
	}

	if err := effect(on); err != nil {
		return fmt.Errorf("settings: apply %s=%s: %w", id, onOff(on), err)
	}

	t.mu.Lock()
	t.applied[id] = on
	t.mu.Unlock()
	return nil
}

// ApplyEvent applies a debounced switch event.
func (t *Table) ApplyEvent(e logic.SwitchEvent) error {
	return t.Apply(e.Switch, e.On)
}

// Applied returns the last successfully applied state of id.
func (t *Table) Applied(id logic.SwitchID) (on, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	on, ok = t.applied[id]
	return on, ok
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
