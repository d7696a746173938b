package cache

import (
	"context"
	"time"
)

// Cache is the slice of Redis the judge pipeline relies on.
// Implementations must be safe for concurrent use.
type Cache interface {
	BasicOps
	PipelineOps

	// Ping checks the connection
	Ping(ctx context.Context) error

	// Close closes the connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get returns "" with a nil error when the key does not exist
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value; ttl <= 0 means no expiry
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX sets the key only if it is absent, atomically with its ttl.
	// It reports whether the key was written.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	Del(ctx context.Context, keys ...string) error

	// Exists returns how many of the given keys are present
	Exists(ctx context.Context, keys ...string) (int64, error)

	// ExpireAt sets an absolute expiry instant on the key
	ExpireAt(ctx context.Context, key string, at time.Time) error

	// TTL returns the remaining time to live.
	// Negative values follow Redis: -1 no expiry, -2 missing key.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// PipelineOps defines batched operations
type PipelineOps interface {
	// Pipeline queues the commands issued by fn and sends them in one round trip
	Pipeline(ctx context.Context, fn func(pipe Pipeliner) error) error
}

// Pipeliner defines the commands that may be queued in a pipeline
type Pipeliner interface {
	Set(key string, value interface{}, ttl time.Duration) error
	ExpireAt(key string, at time.Time) error
	Del(keys ...string) error
}
