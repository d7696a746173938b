package service

import (
	"context"
	"strconv"
	"time"

	"codejudge/internal/common/cache"
	pkgerrors "codejudge/pkg/errors"
)

const (
	cooldownKeyPrefix = "cooldown:"
	// DefaultCooldown is the minimum spacing between two submissions of one user.
	DefaultCooldown = 10 * time.Second
)

// CooldownService enforces a per-user submission cooldown with a single SET NX EX.
// The lock is never released early; it lapses with its TTL.
type CooldownService struct {
	cache        cache.BasicOps
	window       time.Duration
	redisTimeout time.Duration
}

func NewCooldownService(cacheClient cache.BasicOps, window time.Duration, redisTimeout time.Duration) *CooldownService {
	if window <= 0 {
		window = DefaultCooldown
	}
	if redisTimeout <= 0 {
		redisTimeout = time.Second
	}
	return &CooldownService{cache: cacheClient, window: window, redisTimeout: redisTimeout}
}

// CheckAndLock returns true when the caller acquired the cooldown for userID.
func (s *CooldownService) CheckAndLock(ctx context.Context, userID int64) (bool, error) {
	if s.cache == nil {
		return false, pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("cooldown cache is unavailable")
	}

	ctxCache, cancel := context.WithTimeout(ctx, s.redisTimeout)
	defer cancel()

	acquired, err := s.cache.SetNX(ctxCache, cooldownKey(userID), "1", s.window)
	if err != nil {
		return false, pkgerrors.Wrapf(err, pkgerrors.CacheError, "cooldown check failed")
	}
	return acquired, nil
}

func cooldownKey(userID int64) string {
	return cooldownKeyPrefix + strconv.FormatInt(userID, 10)
}
