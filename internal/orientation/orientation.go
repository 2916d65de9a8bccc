// Package orientation provides fused roll/pitch/yaw samples for the gesture
// navigator. Every Source is non-blocking: Latest always returns a value,
// fresh or the previous one.
package orientation

import (
	"sync"

	"github.com/sweeney/wrist-pager/internal/logic"
)

// Source provides the most recent orientation sample.
type Source interface {
	// Latest returns the newest sample without blocking.
	// Before the first reading it returns the zero Sample.
	Latest() logic.Sample
}

// Vector is a 3-axis reading.
type Vector struct {
	X, Y, Z float64
}

// IsZero reports whether all axes are zero.
func (v Vector) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Raw is one scaled IMU reading.
type Raw struct {
	Gyro  Vector // deg/s
	Accel Vector // g
	Mag   Vector // µT, zero when no magnetometer is available
}

// RawReader reads one raw IMU sample. Implementations may block for the
// duration of a bus transaction.
type RawReader interface {
	ReadRaw() (Raw, error)
}

// Slot is a single-value "latest sample" holder shared between a producer
// goroutine and the tick loop.
type Slot[T any] struct {
	mu    sync.Mutex
	value T
	fresh bool
	have  bool
}

// Put stores v, replacing any value not yet taken.
func (s *Slot[T]) Put(v T) {
	s.mu.Lock()
	s.value = v
	s.fresh = true
	s.have = true
	s.mu.Unlock()
}

// Take returns the stored value and whether it is new since the last Take.
// The value is kept so later calls can reuse it.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := s.fresh
	s.fresh = false
	return s.value, fresh
}

// Peek returns the stored value and whether anything was ever stored.
func (s *Slot[T]) Peek() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.have
}
