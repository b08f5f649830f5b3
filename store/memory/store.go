// Package memory provides an in-memory Store implementation for unit testing.
//
// Expiry is enforced against an injectable clock, so retention behaviour can
// be tested without waiting on the wall clock.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/grantrelay"
	"github.com/xraph/grantrelay/dlq"
	"github.com/xraph/grantrelay/event"
	"github.com/xraph/grantrelay/id"
	relaystore "github.com/xraph/grantrelay/store"
)

// compile-time interface check.
var _ relaystore.Store = (*Store)(nil)

// DefaultTTL is the retention window applied when none is configured.
const DefaultTTL = 24 * time.Hour

// Store is an in-memory implementation of store.Store for testing.
type Store struct {
	mu sync.RWMutex

	ttl time.Duration
	now func() time.Time

	records    map[string]*event.Record // keyed by ID string
	dlqEntries map[string]*dlq.Entry    // keyed by ID string

	closed bool
}

// Option configures a memory Store.
type Option func(*Store)

// WithTTL sets the retention window for records and discard entries.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// TTL returns the retention window. Zero means records never expire.
func (s *Store) TTL() time.Duration { return s.ttl }

// WithClock replaces the clock used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a new in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		ttl:        DefaultTTL,
		now:        func() time.Time { return time.Now().UTC() },
		records:    make(map[string]*event.Record),
		dlqEntries: make(map[string]*dlq.Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Ping reports ErrStoreClosed once Close has been called.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return grantrelay.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

// Put stores a copy of rec.
func (s *Store) Put(_ context.Context, rec *event.Record) (id.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return id.Nil, grantrelay.ErrStoreClosed
	}
	if rec.ID.IsNil() {
		rec.ID = id.NewRecordID()
	}
	if s.expired(rec.ReceivedAt) {
		return id.Nil, event.ErrRecordExpired
	}

	cp := *rec
	s.records[rec.ID.String()] = &cp
	return rec.ID, nil
}

// Get returns a copy of a pending record.
func (s *Store) Get(_ context.Context, recID id.ID) (*event.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, grantrelay.ErrStoreClosed
	}
	rec, ok := s.records[recID.String()]
	if !ok || s.expired(rec.ReceivedAt) {
		return nil, event.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

// Delete removes a record.
func (s *Store) Delete(_ context.Context, recID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return grantrelay.ErrStoreClosed
	}
	key := recID.String()
	rec, ok := s.records[key]
	if !ok {
		return event.ErrRecordNotFound
	}
	delete(s.records, key)
	if s.expired(rec.ReceivedAt) {
		return event.ErrRecordNotFound
	}
	return nil
}

// ListPending returns copies of all unexpired records and purges expired ones.
func (s *Store) ListPending(_ context.Context) ([]*event.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, grantrelay.ErrStoreClosed
	}

	result := make([]*event.Record, 0, len(s.records))
	for key, rec := range s.records {
		if s.expired(rec.ReceivedAt) {
			delete(s.records, key)
			continue
		}
		cp := *rec
		result = append(result, &cp)
	}
	return result, nil
}

// Len returns the number of stored records, including expired ones that
// have not been purged yet.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

// PushDiscarded records a discard log entry.
func (s *Store) PushDiscarded(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return grantrelay.ErrStoreClosed
	}
	s.dlqEntries[entry.ID.String()] = entry
	return nil
}

// ListDiscarded returns unexpired discard entries, newest first.
func (s *Store) ListDiscarded(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(s.dlqEntries))
	for _, e := range s.dlqEntries {
		if s.expired(e.DiscardedAt) {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DiscardedAt.After(result[j].DiscardedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// GetDiscarded returns a discard entry by ID.
func (s *Store) GetDiscarded(_ context.Context, entryID id.ID) (*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.dlqEntries[entryID.String()]
	if !ok || s.expired(e.DiscardedAt) {
		return nil, dlq.ErrEntryNotFound
	}
	return e, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// expired reports whether a retention window starting at t has elapsed.
// Callers must hold s.mu.
func (s *Store) expired(t time.Time) bool {
	return s.ttl > 0 && !s.now().Before(t.Add(s.ttl))
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) {
		return nil
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
