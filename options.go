package grantrelay

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/xraph/grantrelay/delivery"
	"github.com/xraph/grantrelay/dlq"
	"github.com/xraph/grantrelay/observability"
	"github.com/xraph/grantrelay/store"
)

// Relay owns intake, the retry sweeper and recovery replay.
type Relay struct {
	config    Config
	store     store.Store
	backend   delivery.Backend
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	newTicker func(time.Duration) delivery.Ticker

	dlqSvc    *dlq.Service
	processor *delivery.Processor
	sweeper   *delivery.Sweeper

	ready  atomic.Bool
	ttlSet bool
}

// ttlStore is implemented by stores that enforce a retention window.
type ttlStore interface {
	TTL() time.Duration
}

// Option configures a Relay instance.
type Option func(*Relay) error

// New creates a new Relay with the given options.
func New(opts ...Option) (*Relay, error) {
	r := &Relay{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.store == nil {
		return nil, ErrNoStore
	}
	if r.backend == nil {
		return nil, ErrNoBackend
	}
	if ts, ok := r.store.(ttlStore); ok && ts.TTL() > 0 {
		ttl := ts.TTL()
		if r.ttlSet && r.config.RecordTTL != ttl {
			return nil, fmt.Errorf("%w: relay %s, store %s", ErrTTLMismatch, r.config.RecordTTL, ttl)
		}
		r.config.RecordTTL = ttl
	}
	r.wireServices()
	return r, nil
}

// WithStore sets the durable store for pending records.
func WithStore(s store.Store) Option {
	return func(r *Relay) error {
		r.store = s
		return nil
	}
}

// WithBackend sets the policy backend records are delivered to.
func WithBackend(b delivery.Backend) Option {
	return func(r *Relay) error {
		r.backend = b
		return nil
	}
}

// WithLogger sets the structured logger for the Relay instance.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) error {
		r.logger = logger
		return nil
	}
}

// WithConfig replaces the whole configuration. A non-zero RecordTTL must
// match the store's TTL, see WithRecordTTL.
func WithConfig(cfg Config) Option {
	return func(r *Relay) error {
		r.config = cfg
		r.ttlSet = cfg.RecordTTL > 0
		return nil
	}
}

// WithSweepInterval sets how often pending records are retried.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.SweepInterval = d
		return nil
	}
}

// WithRecordTTL sets the retention window reported in IntakeResult.ExpiresAt.
// The store enforces its own TTL (memory.WithTTL, redis.WithTTL). When the
// store exposes it, New adopts the store's TTL if this option is not given
// and fails with ErrTTLMismatch if the two differ.
func WithRecordTTL(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.RecordTTL = d
		r.ttlSet = true
		return nil
	}
}

// WithRequestTimeout bounds each delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.RequestTimeout = d
		return nil
	}
}

// WithConcurrency sets how many records a sweep processes in parallel.
func WithConcurrency(n int) Option {
	return func(r *Relay) error {
		r.config.Concurrency = n
		return nil
	}
}

// WithTenant sets the tenant stamped on records that carry none.
func WithTenant(tenant string) Option {
	return func(r *Relay) error {
		r.config.Tenant = tenant
		return nil
	}
}

// WithShutdownTimeout sets the maximum time Stop waits for an in-flight sweep.
func WithShutdownTimeout(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.ShutdownTimeout = d
		return nil
	}
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Relay) error {
		r.metrics = m
		return nil
	}
}

// WithTracer enables OpenTelemetry spans for deliveries and sweeps.
func WithTracer(t *observability.Tracer) Option {
	return func(r *Relay) error {
		r.tracer = t
		return nil
	}
}

// WithTicker replaces the ticker that drives the sweeper. Tests use it to
// trigger sweeps deterministically.
func WithTicker(newTicker func(time.Duration) delivery.Ticker) Option {
	return func(r *Relay) error {
		r.newTicker = newTicker
		return nil
	}
}
