package dlq

import (
	"time"

	"github.com/xraph/grantrelay/event"
	"github.com/xraph/grantrelay/id"
)

// Entry is a record that was removed from the pending store because it
// could never be delivered (for example, a membership event without a
// login). Entries are kept for the same retention window as records.
type Entry struct {
	// ID is the unique TypeID for this entry.
	ID id.ID `json:"id"`

	// Record is the discarded record as it was stored.
	Record *event.Record `json:"record"`

	// Reason is the validation error that caused the discard.
	Reason string `json:"reason"`

	// DiscardedAt is when the record was removed.
	DiscardedAt time.Time `json:"discarded_at"`
}

// ListOpts configures pagination for discard log listing.
type ListOpts struct {
	Offset int
	Limit  int
}
