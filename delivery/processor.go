package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/grantrelay/event"
	"github.com/xraph/grantrelay/id"
	"github.com/xraph/grantrelay/observability"
)

// RecordStore is the part of the durable store the processor and sweeper use.
type RecordStore interface {
	Delete(ctx context.Context, recID id.ID) error
	ListPending(ctx context.Context) ([]*event.Record, error)
}

// DiscardRecorder keeps a trace of records removed without delivery.
type DiscardRecorder interface {
	PushDiscarded(ctx context.Context, rec *event.Record, reason string) error
}

// ProcessorConfig holds processor configuration.
type ProcessorConfig struct {
	// Timeout bounds the backend calls of one delivery attempt. 0 means the
	// backend client's own timeout applies.
	Timeout time.Duration

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Processor runs one delivery attempt for a record and applies the outcome
// to the store. Intake, sweeps and replay all go through it.
type Processor struct {
	store     RecordStore
	deliverer *Deliverer
	discards  DiscardRecorder
	config    ProcessorConfig
	logger    *slog.Logger
}

// NewProcessor creates a processor. discards may be nil.
func NewProcessor(store RecordStore, deliverer *Deliverer, discards DiscardRecorder, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:     store,
		deliverer: deliverer,
		discards:  discards,
		config:    cfg,
		logger:    logger,
	}
}

// Process delivers rec once. Delivered and Discard delete the record,
// Retry leaves it pending. Failures are logged, never returned.
func (p *Processor) Process(ctx context.Context, rec *event.Record) Result {
	var span trace.Span
	if p.config.Tracer != nil {
		ctx, span = p.config.Tracer.StartDeliverSpan(ctx, rec.ID.String(), string(rec.Operation), rec.Principal)
	}

	start := time.Now()
	res := p.deliver(ctx, rec)
	latency := time.Since(start)

	switch res.Outcome {
	case Delivered:
		p.delete(ctx, rec)
		p.logger.DebugContext(ctx, "record delivered",
			"record_id", rec.ID, "operation", rec.Operation, "principal", rec.Principal,
			"latency_ms", latency.Milliseconds())

	case Discard:
		if p.discards != nil {
			if err := p.discards.PushDiscarded(ctx, rec, res.Err.Error()); err != nil {
				p.logger.ErrorContext(ctx, "record discard log failed",
					"record_id", rec.ID, "error", err)
			}
		}
		p.delete(ctx, rec)
		p.logger.WarnContext(ctx, "record discarded",
			"record_id", rec.ID, "action", rec.Action, "error", res.Err)

	case Retry:
		p.logger.WarnContext(ctx, "delivery failed, record left pending",
			"record_id", rec.ID, "operation", rec.Operation, "principal", rec.Principal,
			"error", res.Err)
	}

	if p.config.Metrics != nil {
		p.config.Metrics.RecordDelivery(string(rec.Operation), res.Outcome.String(), latency.Seconds())
	}
	if span != nil {
		p.config.Tracer.EndDeliverSpan(span, res.Outcome.String(), latency.Milliseconds(), res.Err)
	}
	return res
}

func (p *Processor) deliver(ctx context.Context, rec *event.Record) Result {
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}
	return p.deliverer.Deliver(ctx, rec)
}

// delete removes a finished record. A record already deleted by a racing
// sweep is fine; any other error leaves it for redelivery, which is idempotent.
func (p *Processor) delete(ctx context.Context, rec *event.Record) {
	err := p.store.Delete(ctx, rec.ID)
	if err == nil || errors.Is(err, event.ErrRecordNotFound) {
		return
	}
	p.logger.ErrorContext(ctx, "delete record failed",
		"record_id", rec.ID, "error", err)
}
