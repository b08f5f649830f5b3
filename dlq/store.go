package dlq

import (
	"context"
	"errors"

	"github.com/xraph/grantrelay/id"
)

// ErrEntryNotFound is returned when a discard log entry cannot be found.
var ErrEntryNotFound = errors.New("grantrelay: discard entry not found")

// Store defines the persistence contract for the discard log.
type Store interface {
	// PushDiscarded records a discarded record.
	PushDiscarded(ctx context.Context, entry *Entry) error

	// ListDiscarded returns entries, newest first.
	ListDiscarded(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDiscarded returns an entry by ID.
	GetDiscarded(ctx context.Context, entryID id.ID) (*Entry, error)
}
