// Package dlq keeps a bounded-retention log of records that were removed
// without delivery because they failed validation.
package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/grantrelay/event"
	"github.com/xraph/grantrelay/id"
)

// Service manages the discard log.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new discard log service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// PushDiscarded creates an entry for rec. Implements delivery.DiscardRecorder.
func (svc *Service) PushDiscarded(ctx context.Context, rec *event.Record, reason string) error {
	entry := &Entry{
		ID:          id.NewDiscardID(),
		Record:      rec,
		Reason:      reason,
		DiscardedAt: time.Now().UTC(),
	}
	if err := svc.store.PushDiscarded(ctx, entry); err != nil {
		return err
	}
	svc.logger.DebugContext(ctx, "record discarded",
		"entry_id", entry.ID, "record_id", rec.ID, "reason", reason)
	return nil
}

// List returns discard log entries.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return svc.store.ListDiscarded(ctx, opts)
}

// Get returns a discard log entry by ID.
func (svc *Service) Get(ctx context.Context, entryID id.ID) (*Entry, error) {
	return svc.store.GetDiscarded(ctx, entryID)
}
