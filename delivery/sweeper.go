package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/grantrelay/event"
	"github.com/xraph/grantrelay/observability"
)

// ErrSweepInProgress is returned when a sweep is requested while another
// sweep is still running.
var ErrSweepInProgress = errors.New("grantrelay: sweep already in progress")

// Trigger names what started a sweep.
type Trigger string

const (
	TriggerTicker Trigger = "ticker"
	TriggerManual Trigger = "manual"
	TriggerReplay Trigger = "replay"
)

// Ticker is the recurring trigger that drives the sweep loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker returns a Ticker backed by time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// SweeperConfig holds sweeper configuration.
type SweeperConfig struct {
	Interval    time.Duration
	Concurrency int
	NewTicker   func(time.Duration) Ticker
	Metrics     *observability.Metrics
	Tracer      *observability.Tracer
}

// SweepStats summarizes one sweep.
type SweepStats struct {
	Listed    int           `json:"listed"`
	Delivered int           `json:"delivered"`
	Discarded int           `json:"discarded"`
	Retried   int           `json:"retried"`
	Duration  time.Duration `json:"duration"`
}

func (s *SweepStats) add(o Outcome) {
	switch o {
	case Delivered:
		s.Delivered++
	case Discard:
		s.Discarded++
	case Retry:
		s.Retried++
	}
}

// Sweeper periodically lists every pending record and processes it.
type Sweeper struct {
	store     RecordStore
	processor *Processor
	config    SweeperConfig
	logger    *slog.Logger

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper. Zero config fields fall back to a 5 minute
// interval, a concurrency of 1 and time.NewTicker.
func NewSweeper(store RecordStore, processor *Processor, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewTimeTicker
	}
	return &Sweeper{
		store:     store,
		processor: processor,
		config:    cfg,
		logger:    logger,
	}
}

// Start launches the sweep loop. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	s.done = done
	ticker := s.config.NewTicker(s.config.Interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		s.loop(ctx, ticker)
	}()
}

// Stop cancels the loop and waits for the sweep in flight, if any, to finish.
// It returns ctx.Err() if ctx ends first.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) loop(ctx context.Context, ticker Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			stats, err := s.run(ctx, TriggerTicker)
			switch {
			case errors.Is(err, ErrSweepInProgress):
				s.logger.DebugContext(ctx, "sweep skipped, previous sweep still running")
			case err != nil && ctx.Err() == nil:
				s.logger.ErrorContext(ctx, "sweep failed", "error", err)
			case err == nil && stats.Listed > 0:
				s.logger.InfoContext(ctx, "sweep finished",
					"listed", stats.Listed, "delivered", stats.Delivered,
					"discarded", stats.Discarded, "retried", stats.Retried,
					"duration", stats.Duration)
			}
		}
	}
}

// Sweep runs one full pass over the pending records.
func (s *Sweeper) Sweep(ctx context.Context) (SweepStats, error) {
	return s.run(ctx, TriggerManual)
}

// Replay runs the startup pass over records left pending by a previous process.
func (s *Sweeper) Replay(ctx context.Context) (SweepStats, error) {
	return s.run(ctx, TriggerReplay)
}

func (s *Sweeper) run(ctx context.Context, trigger Trigger) (stats SweepStats, err error) {
	if !s.running.CompareAndSwap(false, true) {
		return SweepStats{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	var span trace.Span
	if s.config.Tracer != nil {
		ctx, span = s.config.Tracer.StartSweepSpan(ctx, string(trigger))
	}
	start := time.Now()
	defer func() {
		stats.Duration = time.Since(start)
		if s.config.Metrics != nil && err == nil {
			s.config.Metrics.RecordSweep(string(trigger), stats.Listed, stats.Duration.Seconds())
		}
		if span != nil {
			s.config.Tracer.EndSweepSpan(span, stats.Listed, stats.Delivered, stats.Discarded, stats.Retried, err)
		}
	}()

	records, err := s.store.ListPending(ctx)
	if err != nil {
		return stats, fmt.Errorf("list pending: %w", err)
	}
	stats.Listed = len(records)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.config.Concurrency)
	)
	// In-flight deliveries are bounded by the backend client's timeout,
	// not by the caller; cancellation only stops new dispatches.
	workCtx := context.WithoutCancel(ctx)

dispatch:
	for _, rec := range records {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(rec *event.Record) {
			defer wg.Done()
			defer func() { <-sem }()

			res := s.processor.Process(workCtx, rec)

			mu.Lock()
			stats.add(res.Outcome)
			mu.Unlock()
		}(rec)
	}
	wg.Wait()

	return stats, ctx.Err()
}
