package orientation

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/wrist-pager/internal/logic"
)

// FusedSource fuses raw IMU readings into orientation samples.
// A producer goroutine (Run) keeps the newest raw reading in a slot; the
// tick loop calls Latest, which consumes it if it is new and otherwise
// returns the previous fused sample.
type FusedSource struct {
	reader RawReader
	slot   Slot[Raw]
	filter *Madgwick
	last   logic.Sample
}

// NewFusedSource creates a source fusing reader's samples at sampleFreq Hz.
func NewFusedSource(reader RawReader, sampleFreq, beta float64) *FusedSource {
	return &FusedSource{
		reader: reader,
		filter: NewMadgwick(sampleFreq, beta),
	}
}

// Run polls the reader every interval until ctx is done.
// Read errors are logged and the previous reading is kept.
func (s *FusedSource) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var failures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.Poll() {
				failures++
				if failures == 1 || failures%500 == 0 {
					log.Printf("orientation: %d consecutive read failures", failures)
				}
				continue
			}
			failures = 0
		}
	}
}

// Poll performs one read into the slot. It reports whether the read succeeded.
func (s *FusedSource) Poll() bool {
	raw, err := s.reader.ReadRaw()
	if err != nil {
		log.Printf("orientation: read error: %v", err)
		return false
	}
	s.slot.Put(raw)
	return true
}

// Latest implements Source.
func (s *FusedSource) Latest() logic.Sample {
	raw, fresh := s.slot.Take()
	if !fresh {
		return s.last
	}
	s.filter.Update(raw)
	s.last = s.filter.Sample()
	return s.last
}
