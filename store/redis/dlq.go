package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/grantrelay/dlq"
	"github.com/xraph/grantrelay/id"
)

// dlqEntryModel is the JSON representation stored in Redis.
type dlqEntryModel struct {
	ID          string       `json:"id"`
	Record      *recordModel `json:"record"`
	Reason      string       `json:"reason"`
	DiscardedAt time.Time    `json:"discarded_at"`
}

func toDLQEntryModel(e *dlq.Entry) *dlqEntryModel {
	m := &dlqEntryModel{
		ID:          e.ID.String(),
		Reason:      e.Reason,
		DiscardedAt: e.DiscardedAt,
	}
	if e.Record != nil {
		m.Record = toRecordModel(e.Record)
	}
	return m
}

func fromDLQEntryModel(m *dlqEntryModel) (*dlq.Entry, error) {
	entryID, err := id.ParseDiscardID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse discard ID %q: %w", m.ID, err)
	}
	e := &dlq.Entry{
		ID:          entryID,
		Reason:      m.Reason,
		DiscardedAt: m.DiscardedAt,
	}
	if m.Record != nil {
		rec, err := fromRecordModel(m.Record)
		if err != nil {
			return nil, err
		}
		e.Record = rec
	}
	return e, nil
}

func (s *Store) PushDiscarded(ctx context.Context, entry *dlq.Entry) error {
	ttl := s.remaining(entry.DiscardedAt)
	if ttl <= 0 {
		return nil
	}

	m := toDLQEntryModel(entry)
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("grantrelay/redis: marshal discard entry: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.dlqKey(m.ID), raw, ttl)
	pipe.ZAdd(ctx, s.dlqIndexKey(), goredis.Z{Score: scoreFromTime(m.DiscardedAt), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("grantrelay/redis: push discard entry: %w", err)
	}
	return nil
}

func (s *Store) ListDiscarded(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	indexKey := s.dlqIndexKey()
	if err := s.pruneIndex(ctx, indexKey); err != nil {
		return nil, err
	}

	start := int64(max(opts.Offset, 0))
	stop := int64(-1)
	if opts.Limit > 0 {
		stop = start + int64(opts.Limit) - 1
	}

	ids, err := s.rdb.ZRevRange(ctx, indexKey, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("grantrelay/redis: list discarded: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := s.fetchValues(ctx, indexKey, ids, s.dlqKey)
	if err != nil {
		return nil, err
	}

	result := make([]*dlq.Entry, 0, len(ids))
	for _, raw := range values {
		if raw == nil {
			continue
		}
		var m dlqEntryModel
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("grantrelay/redis: decode discard entry: %w", err)
		}
		e, err := fromDLQEntryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, nil
}

func (s *Store) GetDiscarded(ctx context.Context, entryID id.ID) (*dlq.Entry, error) {
	raw, err := s.rdb.Get(ctx, s.dlqKey(entryID.String())).Bytes()
	if err != nil {
		if isRedisNil(err) {
			return nil, dlq.ErrEntryNotFound
		}
		return nil, fmt.Errorf("grantrelay/redis: get discard entry: %w", err)
	}

	var m dlqEntryModel
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("grantrelay/redis: decode discard entry: %w", err)
	}
	return fromDLQEntryModel(&m)
}
