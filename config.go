package grantrelay

import "time"

// Config holds the configuration for a Relay instance.
type Config struct {
	// SweepInterval is how often pending records are retried.
	SweepInterval time.Duration

	// RecordTTL is the retention window of a record, measured from
	// ReceivedAt. Stores that expose their TTL override a zero value and
	// reject a different one.
	RecordTTL time.Duration

	// RequestTimeout bounds the backend calls of a single delivery attempt.
	RequestTimeout time.Duration

	// Concurrency is the number of records a sweep processes in parallel.
	Concurrency int

	// Tenant is stamped on records that arrive without one.
	Tenant string

	// ShutdownTimeout is the maximum time Stop waits for an in-flight sweep.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval:   5 * time.Minute,
		RecordTTL:       24 * time.Hour,
		RequestTimeout:  10 * time.Second,
		Concurrency:     4,
		Tenant:          "default",
		ShutdownTimeout: 30 * time.Second,
	}
}
