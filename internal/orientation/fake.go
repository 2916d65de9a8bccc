package orientation

import (
	"errors"
	"sync"

	"github.com/sweeney/wrist-pager/internal/logic"
)

// FakeSource replays a scripted sequence of samples for testing.
// After the script is exhausted the last sample repeats.
type FakeSource struct {
	mu      sync.Mutex
	samples []logic.Sample
	index   int
}

// NewFakeSource creates a fake source with the given samples.
func NewFakeSource(samples ...logic.Sample) *FakeSource {
	return &FakeSource{samples: samples}
}

// Latest implements Source.
func (f *FakeSource) Latest() logic.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.samples) == 0 {
		return logic.Sample{}
	}
	if f.index < len(f.samples) {
		s := f.samples[f.index]
		f.index++
		return s
	}
	return f.samples[len(f.samples)-1]
}

// Append adds samples to the script.
func (f *FakeSource) Append(samples ...logic.Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, samples...)
}

// ErrFakeRead is returned by FakeReader when scripted to fail.
var ErrFakeRead = errors.New("fake read error")

// FakeReader replays raw IMU readings. Fail[i] set makes the i-th read
// return ErrFakeRead. After the script is exhausted the last reading repeats.
type FakeReader struct {
	mu       sync.Mutex
	Readings []Raw
	Fail     []bool
	Reads    int
}

// ReadRaw implements RawReader.
func (f *FakeReader) ReadRaw() (Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.Reads
	f.Reads++
	if i < len(f.Fail) && f.Fail[i] {
		return Raw{}, ErrFakeRead
	}
	if len(f.Readings) == 0 {
		return Raw{}, nil
	}
	if i >= len(f.Readings) {
		i = len(f.Readings) - 1
	}
	return f.Readings[i], nil
}
