package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/grantrelay"
	"github.com/xraph/grantrelay/observability"
	"github.com/xraph/grantrelay/policy"
	redisstore "github.com/xraph/grantrelay/store/redis"
)

// deps are the process-wide handles, built once and closed on exit.
type deps struct {
	store   *redisstore.Store
	relay   *grantrelay.Relay
	metrics *observability.Metrics
}

func (d *deps) Close() error {
	return d.store.Close()
}

// buildDeps connects to Redis, builds the policy client and wires the relay.
// reg may be nil for one-shot commands.
func buildDeps(ctx context.Context, cfg Config, logger *slog.Logger, reg prometheus.Registerer) (*deps, error) {
	rdb := goredis.NewClient(cfg.redisOptions())
	st := redisstore.New(rdb,
		redisstore.WithTTL(cfg.RecordTTL),
		redisstore.WithPrefix(cfg.KeyPrefix),
	)
	if err := st.Ping(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}

	backend, err := policy.New(cfg.PolicyURL, cfg.PolicyToken,
		policy.WithTimeout(cfg.RequestTimeout),
		policy.WithRateLimit(cfg.PolicyRateLimit),
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var m *observability.Metrics
	if reg != nil {
		m = observability.NewMetrics(reg)
	}

	r, err := grantrelay.New(
		grantrelay.WithConfig(cfg.relayConfig()),
		grantrelay.WithStore(st),
		grantrelay.WithBackend(backend),
		grantrelay.WithLogger(logger),
		grantrelay.WithMetrics(m),
		grantrelay.WithTracer(observability.NewTracer()),
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &deps{store: st, relay: r, metrics: m}, nil
}
