package orientation

import (
	"math"

	"github.com/sweeney/wrist-pager/internal/logic"
)

// Mock rock cycle, in ticks.
const (
	mockCycleTicks = 400
	mockRestTicks  = 150
	mockRockTicks  = 125
	mockPitch      = 60.0
	mockYawCenter  = 180.0
	mockRollAmp    = 20.0
	mockYawAmp     = 30.0
)

// MockSource generates a deterministic wrist-rock pattern for bench testing
// without hardware. Each call to Latest advances one tick: the wrist rests,
// then performs one full roll/yaw oscillation, alternating direction each
// cycle.
type MockSource struct {
	tick int
}

// NewMockSource creates a mock source starting at rest.
func NewMockSource() *MockSource {
	return &MockSource{}
}

// Latest implements Source.
func (m *MockSource) Latest() logic.Sample {
	s := mockSample(m.tick)
	m.tick++
	return s
}

func mockSample(tick int) logic.Sample {
	rest := logic.Sample{Pitch: mockPitch, Yaw: mockYawCenter}

	phase := tick % mockCycleTicks
	if phase < mockRestTicks || phase >= mockRestTicks+mockRockTicks {
		return rest
	}

	sign := 1.0
	if (tick/mockCycleTicks)%2 == 1 {
		sign = -1
	}
	k := float64(phase - mockRestTicks)
	w := 2 * math.Pi / mockRockTicks
	return logic.Sample{
		Roll:  sign * mockRollAmp * math.Sin(w*k),
		Pitch: mockPitch,
		Yaw:   mockYawCenter + sign*mockYawAmp*math.Sin(w*k),
	}
}
