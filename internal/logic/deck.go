package logic

import "fmt"

// DefaultPageCount is the number of pages on the device.
const DefaultPageCount = 8

// defaultPageNames are the pages of the stock carousel, in order.
var defaultPageNames = []string{"time", "position", "sensor", "battery", "peer", "settings", "wifi", "mic"}

// Deck is the circular page index.
type Deck struct {
	Current  int
	Previous int
	Count    int
}

// NewDeck creates a deck of count pages starting at page 0.
// A count below 1 is treated as 1.
func NewDeck(count int) Deck {
	if count < 1 {
		count = 1
	}
	return Deck{Count: count}
}

// Next moves to the following page, wrapping from the last page to 0.
func (d *Deck) Next() {
	d.Previous = d.Current
	if d.Current >= d.Count-1 {
		d.Current = 0
		return
	}
	d.Current++
}

// Prev moves to the preceding page, wrapping from 0 to the last page.
func (d *Deck) Prev() {
	d.Previous = d.Current
	if d.Current <= 0 {
		d.Current = d.Count - 1
		return
	}
	d.Current--
}

// PageNames returns display names for a deck of count pages.
// The stock names are used when count matches the stock carousel.
func PageNames(count int) []string {
	if count == len(defaultPageNames) {
		names := make([]string, count)
		copy(names, defaultPageNames)
		return names
	}
	names := make([]string, 0, count)
	for i := 0; i < count; i++ {
		names = append(names, fmt.Sprintf("page-%d", i))
	}
	return names
}
