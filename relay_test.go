package grantrelay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/grantrelay"
	"github.com/xraph/grantrelay/delivery"
	"github.com/xraph/grantrelay/dlq"
	"github.com/xraph/grantrelay/event"
	"github.com/xraph/grantrelay/id"
	"github.com/xraph/grantrelay/store/memory"
)

var errUnreachable = errors.New("dial tcp: connection refused")

func ctx() context.Context { return context.Background() }

// stubBackend records backend state and can be switched offline.
type stubBackend struct {
	mu      sync.Mutex
	users   map[string]bool
	roles   map[string]string
	offline map[string]bool // principals whose calls fail
	down    bool
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		users:   make(map[string]bool),
		roles:   make(map[string]string),
		offline: make(map[string]bool),
	}
}

func (b *stubBackend) setDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

func (b *stubBackend) failFor(principal string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offline[principal] = true
}

func (b *stubBackend) unavailable(key string) bool {
	return b.down || b.offline[key]
}

func (b *stubBackend) CreatePrincipal(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable(key) {
		return errUnreachable
	}
	if b.users[key] {
		return delivery.ErrAlreadyExists
	}
	b.users[key] = true
	return nil
}

func (b *stubBackend) AssignRole(_ context.Context, key, role, tenant string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable(key) {
		return errUnreachable
	}
	b.roles[key] = tenant + "/" + role
	return nil
}

func (b *stubBackend) RemovePrincipal(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable(key) {
		return errUnreachable
	}
	if !b.users[key] {
		return delivery.ErrAlreadyAbsent
	}
	delete(b.users, key)
	delete(b.roles, key)
	return nil
}

func (b *stubBackend) role(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.roles[key]
}

func setup(t *testing.T, opts ...grantrelay.Option) (*grantrelay.Relay, *memory.Store, *stubBackend) {
	t.Helper()
	s := memory.New()
	b := newStubBackend()
	opts = append([]grantrelay.Option{grantrelay.WithStore(s), grantrelay.WithBackend(b)}, opts...)
	r, err := grantrelay.New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	return r, s, b
}

func pending(t *testing.T, r *grantrelay.Relay) []*event.Record {
	t.Helper()
	recs, err := r.Pending(ctx())
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func apply(principal, role string) *event.Record {
	return &event.Record{Operation: event.OpApplyGrant, Principal: principal, Role: role, Action: "member_added"}
}

func retract(principal string) *event.Record {
	return &event.Record{Operation: event.OpRetractGrant, Principal: principal, Action: "member_removed"}
}

func TestNewRequiresStoreAndBackend(t *testing.T) {
	if _, err := grantrelay.New(grantrelay.WithBackend(newStubBackend())); !errors.Is(err, grantrelay.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
	if _, err := grantrelay.New(grantrelay.WithStore(memory.New())); !errors.Is(err, grantrelay.ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	r, _, _ := setup(t)
	cfg := r.Config()
	if cfg.SweepInterval != 5*time.Minute || cfg.RecordTTL != 24*time.Hour {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Concurrency != 4 || cfg.Tenant != "default" || cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestIntakeDelivers(t *testing.T) {
	r, _, b := setup(t, grantrelay.WithTenant("acme"))

	rec := apply("alice", "member")
	res, err := r.Intake(ctx(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != delivery.Delivered || res.DeliveryErr != nil {
		t.Fatalf("expected Delivered, got %s (%v)", res.Outcome, res.DeliveryErr)
	}
	if res.ID.Prefix() != id.PrefixRecord {
		t.Fatalf("expected record ID, got %q", res.ID)
	}
	if rec.ReceivedAt.IsZero() || rec.Tenant != "acme" {
		t.Fatalf("intake should stamp ReceivedAt and tenant, got %+v", rec)
	}
	if !res.ExpiresAt.Equal(rec.ReceivedAt.Add(24 * time.Hour)) {
		t.Fatalf("unexpected ExpiresAt %v", res.ExpiresAt)
	}
	if got := b.role("alice"); got != "acme/member" {
		t.Fatalf("expected acme/member grant, got %q", got)
	}
	if n := len(pending(t, r)); n != 0 {
		t.Fatalf("expected no pending records, got %d", n)
	}
}

// Backend unreachable at intake: the record stays pending, intake still
// succeeds, and the next sweep delivers it once the backend is back.
func TestIntakeBackendDownThenSweep(t *testing.T) {
	r, _, b := setup(t)
	b.setDown(true)

	res, err := r.Intake(ctx(), apply("alice", "member"))
	if err != nil {
		t.Fatalf("intake must not fail on delivery failure: %v", err)
	}
	if res.Outcome != delivery.Retry || !errors.Is(res.DeliveryErr, errUnreachable) {
		t.Fatalf("expected Retry with backend error, got %s (%v)", res.Outcome, res.DeliveryErr)
	}

	recs := pending(t, r)
	if len(recs) != 1 || recs[0].ID.String() != res.ID.String() {
		t.Fatalf("expected the record pending, got %+v", recs)
	}

	b.setDown(false)
	stats, err := r.Sweep(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Delivered != 1 {
		t.Fatalf("expected 1 delivered, got %+v", stats)
	}
	if n := len(pending(t, r)); n != 0 {
		t.Fatalf("expected no pending records, got %d", n)
	}
	if got := b.role("alice"); got != "default/member" {
		t.Fatalf("expected default/member grant, got %q", got)
	}
}

// Retracting a principal the backend never knew about counts as delivered.
func TestIntakeRetractAbsentPrincipal(t *testing.T) {
	r, _, _ := setup(t)

	res, err := r.Intake(ctx(), retract("bob"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != delivery.Delivered {
		t.Fatalf("expected Delivered, got %s (%v)", res.Outcome, res.DeliveryErr)
	}
	if n := len(pending(t, r)); n != 0 {
		t.Fatalf("expected no pending records, got %d", n)
	}
}

func TestIntakeInvalidRecordIsDiscarded(t *testing.T) {
	r, _, _ := setup(t)

	res, err := r.Intake(ctx(), apply("alice", ""))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != delivery.Discard || !errors.Is(res.DeliveryErr, delivery.ErrInvalidRecord) {
		t.Fatalf("expected Discard, got %s (%v)", res.Outcome, res.DeliveryErr)
	}
	if n := len(pending(t, r)); n != 0 {
		t.Fatalf("discarded record must be removed, got %d pending", n)
	}

	entries, err := r.DLQ().List(ctx(), dlq.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Record.ID.String() != res.ID.String() {
		t.Fatalf("expected discard entry for the record, got %+v", entries)
	}
}

func TestIntakeIgnoreConsumesNothing(t *testing.T) {
	r, _, b := setup(t)
	b.setDown(true)

	res, err := r.Intake(ctx(), &event.Record{Operation: event.OpIgnore, Principal: "carol", Action: "member_invited"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != delivery.Delivered {
		t.Fatalf("ignore should always deliver, got %s", res.Outcome)
	}
}

func TestIntakePersistFailure(t *testing.T) {
	r, s, b := setup(t)
	_ = s.Close()

	_, err := r.Intake(ctx(), apply("alice", "member"))
	if !errors.Is(err, grantrelay.ErrPersistFailed) || !errors.Is(err, grantrelay.ErrStoreClosed) {
		t.Fatalf("expected ErrPersistFailed wrapping ErrStoreClosed, got %v", err)
	}
	if got := b.role("alice"); got != "" {
		t.Fatal("nothing may be delivered when the record was not persisted")
	}
}

// A restart finds three pending records; two can now be delivered.
func TestStartReplaysPendingRecords(t *testing.T) {
	s := memory.New()
	b := newStubBackend()

	// First process: backend down, three records left pending.
	first, err := grantrelay.New(grantrelay.WithStore(s), grantrelay.WithBackend(b))
	if err != nil {
		t.Fatal(err)
	}
	b.setDown(true)
	for _, rec := range []*event.Record{apply("alice", "member"), apply("dave", "admin"), retract("erin")} {
		if _, err := first.Intake(ctx(), rec); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(pending(t, first)); n != 3 {
		t.Fatalf("expected 3 pending, got %d", n)
	}

	// Second process over the same store: backend back, but dave still fails.
	b.setDown(false)
	b.failFor("dave")
	ticker := &idleTicker{ch: make(chan time.Time)}
	second, err := grantrelay.New(
		grantrelay.WithStore(s),
		grantrelay.WithBackend(b),
		grantrelay.WithTicker(func(time.Duration) delivery.Ticker { return ticker }),
	)
	if err != nil {
		t.Fatal(err)
	}

	if second.Ready() {
		t.Fatal("relay must not be ready before replay")
	}
	if err := second.Ping(ctx()); !errors.Is(err, grantrelay.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}

	if err := second.Start(ctx()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = second.Stop(ctx()) }()

	if !second.Ready() {
		t.Fatal("relay should be ready after replay")
	}
	if err := second.Ping(ctx()); err != nil {
		t.Fatal(err)
	}

	recs := pending(t, second)
	if len(recs) != 1 || recs[0].Principal != "dave" {
		t.Fatalf("expected only dave pending, got %+v", recs)
	}
}

func TestStartSurvivesReplayFailure(t *testing.T) {
	r, s, _ := setup(t, grantrelay.WithTicker(func(time.Duration) delivery.Ticker {
		return &idleTicker{ch: make(chan time.Time)}
	}))
	_ = s.Close()

	if err := r.Start(ctx()); err != nil {
		t.Fatalf("replay failure must not prevent startup: %v", err)
	}
	defer func() { _ = r.Stop(ctx()) }()

	if !r.Ready() {
		t.Fatal("relay should be ready")
	}
	if err := r.Ping(ctx()); !errors.Is(err, grantrelay.ErrStoreClosed) {
		t.Fatalf("expected store error from Ping, got %v", err)
	}
}

func TestSweeperRunsOnTick(t *testing.T) {
	ticker := &idleTicker{ch: make(chan time.Time)}
	var interval time.Duration
	r, _, b := setup(t,
		grantrelay.WithSweepInterval(time.Minute),
		grantrelay.WithTicker(func(d time.Duration) delivery.Ticker {
			interval = d
			return ticker
		}),
	)

	if err := r.Start(ctx()); err != nil {
		t.Fatal(err)
	}
	if interval != time.Minute {
		t.Fatalf("expected sweep interval 1m, got %v", interval)
	}

	b.setDown(true)
	if _, err := r.Intake(ctx(), apply("alice", "member")); err != nil {
		t.Fatal(err)
	}
	b.setDown(false)

	ticker.ch <- time.Now()

	deadline := time.After(2 * time.Second)
	for len(pending(t, r)) != 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for tick-driven sweep")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := r.Stop(ctx()); err != nil {
		t.Fatal(err)
	}
	if r.Ready() {
		t.Fatal("relay should not be ready after Stop")
	}
}

// idleTicker only fires when the test sends on ch.
type idleTicker struct{ ch chan time.Time }

func (t *idleTicker) C() <-chan time.Time { return t.ch }
func (t *idleTicker) Stop()               {}

func TestNewAdoptsStoreTTL(t *testing.T) {
	r, err := grantrelay.New(
		grantrelay.WithStore(memory.New(memory.WithTTL(time.Hour))),
		grantrelay.WithBackend(newStubBackend()),
	)
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Config().RecordTTL; got != time.Hour {
		t.Fatalf("expected RecordTTL 1h from store, got %v", got)
	}

	rec := apply("alice", "member")
	res, err := r.Intake(ctx(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if want := rec.ReceivedAt.Add(time.Hour); !res.ExpiresAt.Equal(want) {
		t.Fatalf("expected ExpiresAt %v, got %v", want, res.ExpiresAt)
	}
}

func TestNewRejectsTTLMismatch(t *testing.T) {
	_, err := grantrelay.New(
		grantrelay.WithStore(memory.New(memory.WithTTL(time.Hour))),
		grantrelay.WithBackend(newStubBackend()),
		grantrelay.WithRecordTTL(24*time.Hour),
	)
	if !errors.Is(err, grantrelay.ErrTTLMismatch) {
		t.Fatalf("expected ErrTTLMismatch, got %v", err)
	}

	cfg := grantrelay.DefaultConfig()
	cfg.RecordTTL = 2 * time.Hour
	if _, err := grantrelay.New(
		grantrelay.WithStore(memory.New(memory.WithTTL(time.Hour))),
		grantrelay.WithBackend(newStubBackend()),
		grantrelay.WithConfig(cfg),
	); !errors.Is(err, grantrelay.ErrTTLMismatch) {
		t.Fatalf("expected ErrTTLMismatch from WithConfig, got %v", err)
	}

	if _, err := grantrelay.New(
		grantrelay.WithStore(memory.New(memory.WithTTL(time.Hour))),
		grantrelay.WithBackend(newStubBackend()),
		grantrelay.WithRecordTTL(time.Hour),
	); err != nil {
		t.Fatalf("matching TTL should be accepted: %v", err)
	}
}
