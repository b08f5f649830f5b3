package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/grantrelay/event"
	"github.com/xraph/grantrelay/id"
)

// recordModel is the JSON representation stored in Redis.
type recordModel struct {
	ID         string          `json:"id"`
	Operation  string          `json:"operation"`
	Principal  string          `json:"principal"`
	Role       string          `json:"role,omitempty"`
	Tenant     string          `json:"tenant"`
	Action     string          `json:"action"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

func toRecordModel(rec *event.Record) *recordModel {
	return &recordModel{
		ID:         rec.ID.String(),
		Operation:  string(rec.Operation),
		Principal:  rec.Principal,
		Role:       rec.Role,
		Tenant:     rec.Tenant,
		Action:     rec.Action,
		RawPayload: rec.RawPayload,
		ReceivedAt: rec.ReceivedAt,
	}
}

func fromRecordModel(m *recordModel) (*event.Record, error) {
	recID, err := id.ParseRecordID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse record ID %q: %w", m.ID, err)
	}
	return &event.Record{
		ID:         recID,
		Operation:  event.Operation(m.Operation),
		Principal:  m.Principal,
		Role:       m.Role,
		Tenant:     m.Tenant,
		Action:     m.Action,
		RawPayload: m.RawPayload,
		ReceivedAt: m.ReceivedAt,
	}, nil
}

// decodeRecord turns a stored value into a record. A value that cannot be
// decoded is returned as a record with no operation, carrying the raw bytes,
// so delivery discards it instead of retrying it until it expires.
func decodeRecord(recID string, raw []byte) *event.Record {
	var m recordModel
	if err := json.Unmarshal(raw, &m); err == nil {
		if rec, convErr := fromRecordModel(&m); convErr == nil {
			return rec
		}
	}

	parsed, _ := id.ParseRecordID(recID) //nolint:errcheck // ListPending drops malformed members first
	return &event.Record{ID: parsed, RawPayload: json.RawMessage(raw)}
}

func (s *Store) Put(ctx context.Context, rec *event.Record) (id.ID, error) {
	if rec.ID.IsNil() {
		rec.ID = id.NewRecordID()
	}

	ttl := s.remaining(rec.ReceivedAt)
	if ttl <= 0 {
		return id.Nil, event.ErrRecordExpired
	}

	m := toRecordModel(rec)
	raw, err := json.Marshal(m)
	if err != nil {
		return id.Nil, fmt.Errorf("grantrelay/redis: marshal record: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.recordKey(m.ID), raw, ttl)
	pipe.ZAdd(ctx, s.pendingIndexKey(), goredis.Z{Score: scoreFromTime(rec.ReceivedAt), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return id.Nil, fmt.Errorf("grantrelay/redis: put record: %w", err)
	}
	return rec.ID, nil
}

func (s *Store) Get(ctx context.Context, recID id.ID) (*event.Record, error) {
	raw, err := s.rdb.Get(ctx, s.recordKey(recID.String())).Bytes()
	if err != nil {
		if isRedisNil(err) {
			return nil, event.ErrRecordNotFound
		}
		return nil, fmt.Errorf("grantrelay/redis: get record: %w", err)
	}
	return decodeRecord(recID.String(), raw), nil
}

func (s *Store) Delete(ctx context.Context, recID id.ID) error {
	pipe := s.rdb.TxPipeline()
	del := pipe.Del(ctx, s.recordKey(recID.String()))
	pipe.ZRem(ctx, s.pendingIndexKey(), recID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("grantrelay/redis: delete record: %w", err)
	}
	if del.Val() == 0 {
		return event.ErrRecordNotFound
	}
	return nil
}

func (s *Store) ListPending(ctx context.Context) ([]*event.Record, error) {
	indexKey := s.pendingIndexKey()
	if err := s.pruneIndex(ctx, indexKey); err != nil {
		return nil, err
	}

	ids, err := s.rdb.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("grantrelay/redis: list pending: %w", err)
	}
	ids, err = s.dropMalformed(ctx, indexKey, ids)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := s.fetchValues(ctx, indexKey, ids, s.recordKey)
	if err != nil {
		return nil, err
	}

	result := make([]*event.Record, 0, len(ids))
	for i, raw := range values {
		if raw == nil {
			continue
		}
		result = append(result, decodeRecord(ids[i], raw))
	}
	return result, nil
}

// dropMalformed removes index members that are not record IDs, together with
// their value keys, and returns the remaining members. Such a member could
// never be deleted by ID and would be discarded again on every sweep.
func (s *Store) dropMalformed(ctx context.Context, indexKey string, ids []string) ([]string, error) {
	valid := make([]string, 0, len(ids))
	var (
		bad  []any
		keys []string
	)
	for _, member := range ids {
		if _, err := id.ParseRecordID(member); err != nil {
			bad = append(bad, member)
			keys = append(keys, s.recordKey(member))
			continue
		}
		valid = append(valid, member)
	}
	if len(bad) == 0 {
		return ids, nil
	}

	pipe := s.rdb.TxPipeline()
	pipe.ZRem(ctx, indexKey, bad...)
	pipe.Del(ctx, keys...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("grantrelay/redis: drop malformed members: %w", err)
	}
	return valid, nil
}
