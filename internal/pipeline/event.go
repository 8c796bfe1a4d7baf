package pipeline

import "laterai/internal/domain"

// EventType names a capture lifecycle stage.
type EventType string

const (
	EventItemCreated    EventType = "item_created"
	EventItemClassified EventType = "item_classified"
	EventItemFailed     EventType = "item_failed"
)

// Event is delivered to subscribers as a capture progresses.
//
//   - item_created: Item is the stored, unclassified item.
//   - item_classified: Item has the enrichment applied, Patch is the enrichment alone.
//     Item may be ahead of the store when persisting the enrichment failed.
//   - item_failed: Err is the insert failure, Request the capture that failed.
type Event struct {
	Type    EventType
	Item    domain.SavedItem
	Patch   domain.ItemPatch
	Err     error
	Request domain.CaptureRequest
}

// Listener receives events synchronously on the goroutine that produced them.
type Listener func(Event)
