package redis

// DefaultPrefix namespaces every key the store writes, so grantrelay can
// share a Redis database with unrelated data.
const DefaultPrefix = "grantrelay:"

// Key segments appended to the configured prefix.
const (
	segRecord = "rec:"
	segDLQ    = "dlq:"

	segPendingIndex = "z:pending"
	segDLQIndex     = "z:dlq"
)

// recordKey returns the value key for a pending record.
func (s *Store) recordKey(recID string) string {
	return s.prefix + segRecord + recID
}

// dlqKey returns the value key for a discard log entry.
func (s *Store) dlqKey(entryID string) string {
	return s.prefix + segDLQ + entryID
}

// pendingIndexKey returns the sorted set that enumerates pending records.
func (s *Store) pendingIndexKey() string {
	return s.prefix + segPendingIndex
}

// dlqIndexKey returns the sorted set that enumerates discard entries.
func (s *Store) dlqIndexKey() string {
	return s.prefix + segDLQIndex
}
