package contentflow

import (
	"strings"
	"time"

	"github.com/randalmurphal/contentflow/pkg/contentflow/event"
)

// Content is what a producer returns for one firing.
type Content struct {
	// ItemID names the produced item. It may be empty when the producer
	// declares exactly one item.
	ItemID string

	Payload any
}

// ContentItem is one produced item of one cycle. It is immutable.
type ContentItem struct {
	ProducerID string
	ItemID     string
	EventID    event.ID
	CycleID    string
	Payload    any
	ProducedAt time.Time
}

// MergedItem is a merger's result for one cycle.
type MergedItem struct {
	MergerID string
	EventID  event.ID
	CycleID  string
	Payload  any

	// Inputs lists the producers whose items were merged, in merge order.
	Inputs []string

	MergedAt time.Time
}

func compareContentItems(a, b ContentItem) int {
	if c := strings.Compare(a.ItemID, b.ItemID); c != 0 {
		return c
	}
	return strings.Compare(a.ProducerID, b.ProducerID)
}

func compareMergedItems(a, b MergedItem) int {
	return strings.Compare(a.MergerID, b.MergerID)
}
