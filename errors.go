package grantrelay

import (
	"errors"

	"github.com/xraph/grantrelay/delivery"
	"github.com/xraph/grantrelay/event"
)

// Sentinel errors returned by Relay operations.
var (
	// ErrNoStore is returned when a Relay is created without a store.
	ErrNoStore = errors.New("grantrelay: store is required")

	// ErrNoBackend is returned when a Relay is created without a policy backend.
	ErrNoBackend = errors.New("grantrelay: backend is required")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("grantrelay: store is closed")

	// ErrTTLMismatch is returned by New when the configured RecordTTL differs
	// from the TTL the store enforces.
	ErrTTLMismatch = errors.New("grantrelay: record TTL does not match store TTL")

	// ErrPersistFailed is returned by Intake when the record could not be
	// stored. Nothing was recorded.
	ErrPersistFailed = errors.New("grantrelay: persist failed")

	// ErrNotReady is returned by readiness checks before recovery replay has run.
	ErrNotReady = errors.New("grantrelay: not ready")

	// ErrRecordNotFound is returned when a record is absent or expired.
	ErrRecordNotFound = event.ErrRecordNotFound

	// ErrSweepInProgress is returned when a sweep overlaps a running one.
	ErrSweepInProgress = delivery.ErrSweepInProgress
)
