package event

import (
	"context"
	"errors"

	"github.com/xraph/grantrelay/id"
)

var (
	// ErrRecordNotFound is returned when a record is absent or has expired.
	ErrRecordNotFound = errors.New("grantrelay: record not found")

	// ErrRecordExpired is returned by Put when the record's retention
	// window has already elapsed.
	ErrRecordExpired = errors.New("grantrelay: record already past retention")
)

// Store defines the persistence contract for pending records. Every record
// in the store is pending by definition. Each operation is independently
// atomic; no multi-key transactions are needed.
type Store interface {
	// Put persists rec with a TTL measured from rec.ReceivedAt and returns
	// its ID. Must be durable before returning.
	Put(ctx context.Context, rec *Record) (id.ID, error)

	// Get returns a pending record by ID.
	Get(ctx context.Context, recID id.ID) (*Record, error)

	// Delete removes a record. Returns ErrRecordNotFound if it is already gone.
	Delete(ctx context.Context, recID id.ID) error

	// ListPending returns all unexpired records in no particular order.
	// Safe to call concurrently with Put and Delete; records written during
	// enumeration may or may not appear.
	ListPending(ctx context.Context) ([]*Record, error)
}
