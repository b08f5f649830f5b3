// Package store defines the composite Store interface for grantrelay
// persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them, so a single backend (Redis in production, memory in tests)
// serves the pending records and the discard log.
package store

import (
	"context"

	"github.com/xraph/grantrelay/dlq"
	"github.com/xraph/grantrelay/event"
)

// Store is the aggregate persistence interface.
type Store interface {
	event.Store
	dlq.Store

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
