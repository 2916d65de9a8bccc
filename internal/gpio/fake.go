package gpio

import (
	"errors"

	"github.com/sweeney/wrist-pager/internal/logic"
)

// FakeReader is a test double that returns scripted switch states.
type FakeReader struct {
	// Samples contains scripted readings.
	// Each call to Read() consumes the next sample.
	Samples []map[logic.SwitchID]bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...map[logic.SwitchID]bool) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns a copy of the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (map[logic.SwitchID]bool, error) {
	if f.ReadError != nil {
		return nil, f.ReadError
	}

	if len(f.Samples) == 0 {
		return nil, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	out := make(map[logic.SwitchID]bool, len(sample))
	for id, on := range sample {
		out[id] = on
	}
	return out, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}
