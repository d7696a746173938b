package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"codejudge/internal/common/cache"
)

const (
	revokedKeyPrefix = "blocked:"
	revokedValue     = "blocked"
)

// TokenRevocationRepository records logged-out tokens in Redis until the token's own expiry.
// Tokens are stored by SHA-256 digest so raw credentials never reach Redis.
type TokenRevocationRepository struct {
	local        *LRUCache
	redis        cache.Cache
	redisTimeout time.Duration
	localTTL     time.Duration
	now          func() time.Time
}

// NewTokenRevocationRepository builds the repository; local may be nil to disable the in-process cache.
func NewTokenRevocationRepository(local *LRUCache, redis cache.Cache, redisTimeout, localTTL time.Duration) *TokenRevocationRepository {
	if redisTimeout <= 0 {
		redisTimeout = time.Second
	}
	return &TokenRevocationRepository{
		local:        local,
		redis:        redis,
		redisTimeout: redisTimeout,
		localTTL:     localTTL,
		now:          time.Now,
	}
}

// Revoke blocks the token until expiresAt. Tokens already past expiry are left alone.
func (r *TokenRevocationRepository) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	if token == "" {
		return errors.New("token is empty")
	}
	if !r.now().Before(expiresAt) {
		return nil
	}
	if r.redis == nil {
		return errors.New("redis is nil")
	}

	key := revokedKey(token)
	ctxCache, cancel := context.WithTimeout(ctx, r.redisTimeout)
	defer cancel()
	err := r.redis.Pipeline(ctxCache, func(pipe cache.Pipeliner) error {
		if err := pipe.Set(key, revokedValue, 0); err != nil {
			return err
		}
		return pipe.ExpireAt(key, expiresAt)
	})
	if err != nil {
		return err
	}
	r.remember(key, expiresAt)
	return nil
}

// IsRevoked consults the local cache for positive hits, then Redis.
func (r *TokenRevocationRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	key := revokedKey(token)
	if r.local != nil && r.local.Contains(key) {
		return true, nil
	}
	if r.redis == nil {
		return false, errors.New("redis is nil")
	}

	ctxCache, cancel := context.WithTimeout(ctx, r.redisTimeout)
	defer cancel()
	n, err := r.redis.Exists(ctxCache, key)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if r.local != nil && r.localTTL > 0 {
		until := r.now().Add(r.localTTL)
		if ttl, err := r.redis.TTL(ctxCache, key); err == nil && ttl > 0 && ttl < r.localTTL {
			until = r.now().Add(ttl)
		}
		r.local.Add(key, until)
	}
	return true, nil
}

func (r *TokenRevocationRepository) remember(key string, expiresAt time.Time) {
	if r.local == nil || r.localTTL <= 0 {
		return
	}
	until := r.now().Add(r.localTTL)
	if expiresAt.Before(until) {
		until = expiresAt
	}
	r.local.Add(key, until)
}

func revokedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return revokedKeyPrefix + hex.EncodeToString(sum[:])
}
