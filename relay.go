package grantrelay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grantrelay/delivery"
	"github.com/xraph/grantrelay/dlq"
	"github.com/xraph/grantrelay/event"
	"github.com/xraph/grantrelay/id"
)

// IntakeResult describes what happened to an accepted record.
type IntakeResult struct {
	// ID is the identifier the record was stored under.
	ID id.ID

	// Outcome of the synchronous delivery attempt. On Retry the record
	// stays pending and the sweeper owns it from here.
	Outcome delivery.Outcome

	// DeliveryErr is the reason for a Retry or Discard outcome.
	DeliveryErr error

	// ExpiresAt is when a still-pending record is dropped by the store.
	ExpiresAt time.Time
}

// wireServices initializes the internal services after options have been applied.
func (r *Relay) wireServices() {
	r.dlqSvc = dlq.NewService(r.store, r.logger)

	r.processor = delivery.NewProcessor(r.store, delivery.NewDeliverer(r.backend), r.dlqSvc,
		delivery.ProcessorConfig{
			Timeout: r.config.RequestTimeout,
			Metrics: r.metrics,
			Tracer:  r.tracer,
		}, r.logger)

	r.sweeper = delivery.NewSweeper(r.store, r.processor, delivery.SweeperConfig{
		Interval:    r.config.SweepInterval,
		Concurrency: r.config.Concurrency,
		NewTicker:   r.newTicker,
		Metrics:     r.metrics,
		Tracer:      r.tracer,
	}, r.logger)
}

// Start replays records left pending by a previous process, marks the relay
// ready and starts the retry sweeper. A failed replay is logged and does not
// prevent startup; the sweeper picks the records up later.
func (r *Relay) Start(ctx context.Context) error {
	stats, err := r.Replay(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.ErrorContext(ctx, "recovery replay failed", "error", err)
	} else {
		r.logger.InfoContext(ctx, "recovery replay finished",
			"listed", stats.Listed, "delivered", stats.Delivered,
			"discarded", stats.Discarded, "retried", stats.Retried,
			"duration", stats.Duration)
	}

	r.ready.Store(true)
	r.sweeper.Start(context.WithoutCancel(ctx))
	return nil
}

// Stop marks the relay not ready and shuts the sweeper down, waiting up to
// ShutdownTimeout for an in-flight sweep when ctx has no deadline.
func (r *Relay) Stop(ctx context.Context) error {
	r.ready.Store(false)

	if _, ok := ctx.Deadline(); !ok && r.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.ShutdownTimeout)
		defer cancel()
	}
	return r.sweeper.Stop(ctx)
}

// Ready reports whether recovery replay has completed.
func (r *Relay) Ready() bool {
	return r.ready.Load()
}

// Ping reports whether the relay can serve intake: replay has run and the
// store is reachable.
func (r *Relay) Ping(ctx context.Context) error {
	if !r.Ready() {
		return ErrNotReady
	}
	return r.store.Ping(ctx)
}

// Intake persists rec and attempts delivery once.
//
// The critical path:
//  1. Assign ID, ReceivedAt and Tenant if unset.
//  2. Persist the record. On failure nothing is recorded and a wrapped
//     ErrPersistFailed is returned.
//  3. Deliver once; Delivered and Discard outcomes delete the record.
//
// A failed delivery is not an error: the record is safe in the store and the
// outcome is reported in the result.
func (r *Relay) Intake(ctx context.Context, rec *event.Record) (IntakeResult, error) {
	if rec.ID.IsNil() {
		rec.ID = id.NewRecordID()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	if rec.Tenant == "" {
		rec.Tenant = r.config.Tenant
	}

	recID, err := r.store.Put(ctx, rec)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordIntake("persist_failed")
		}
		r.logger.ErrorContext(ctx, "persist record failed",
			"record_id", rec.ID, "action", rec.Action, "error", err)
		return IntakeResult{}, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	res := r.processor.Process(ctx, rec)

	if r.metrics != nil {
		r.metrics.RecordIntake(intakeStatus(res.Outcome))
	}

	return IntakeResult{
		ID:          recID,
		Outcome:     res.Outcome,
		DeliveryErr: res.Err,
		ExpiresAt:   rec.ExpiresAt(r.config.RecordTTL),
	}, nil
}

func intakeStatus(o delivery.Outcome) string {
	switch o {
	case delivery.Delivered:
		return "delivered"
	case delivery.Discard:
		return "discarded"
	default:
		return "pending"
	}
}

// Replay runs one sweep over records left pending by a previous process.
func (r *Relay) Replay(ctx context.Context) (delivery.SweepStats, error) {
	return r.sweeper.Replay(ctx)
}

// Sweep runs one sweep now. It returns ErrSweepInProgress if a sweep is
// already running.
func (r *Relay) Sweep(ctx context.Context) (delivery.SweepStats, error) {
	stats, err := r.sweeper.Sweep(ctx)
	if err != nil && !errors.Is(err, ErrSweepInProgress) {
		r.logger.ErrorContext(ctx, "sweep failed", "error", err)
	}
	return stats, err
}

// Pending returns the records currently awaiting delivery.
func (r *Relay) Pending(ctx context.Context) ([]*event.Record, error) {
	return r.store.ListPending(ctx)
}

// Config returns the effective configuration.
func (r *Relay) Config() Config {
	return r.config
}

// Record returns a pending record by ID, or ErrRecordNotFound once it has
// been delivered, discarded or has expired.
func (r *Relay) Record(ctx context.Context, recID id.ID) (*event.Record, error) {
	return r.store.Get(ctx, recID)
}

// DLQ returns the discard log service.
func (r *Relay) DLQ() *dlq.Service {
	return r.dlqSvc
}
