package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunLock enforces at most one in-flight run per user.
type RunLock interface {
	// Acquire takes the user's lock for runID. Re-acquiring a lock already
	// held by the same run succeeds and refreshes its TTL.
	Acquire(ctx context.Context, userID, runID int64) (bool, error)
	// Release drops the lock only if runID still holds it.
	Release(ctx context.Context, userID, runID int64) error
}

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisRunLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRunLock(client *redis.Client, ttl time.Duration) RunLock {
	if ttl <= 0 {
		ttl = 20 * time.Minute
	}
	return &redisRunLock{client: client, ttl: ttl}
}

func runLockKey(userID int64) string {
	return fmt.Sprintf("analysis-lock:user-%d", userID)
}

func (l *redisRunLock) Acquire(ctx context.Context, userID, runID int64) (bool, error) {
	key := runLockKey(userID)
	owner := strconv.FormatInt(runID, 10)

	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring run lock: %w", err)
	}
	if ok {
		return true, nil
	}

	refreshed, err := refreshScript.Run(ctx, l.client, []string{key}, owner, l.ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("refreshing run lock: %w", err)
	}
	return refreshed == 1, nil
}

func (l *redisRunLock) Release(ctx context.Context, userID, runID int64) error {
	owner := strconv.FormatInt(runID, 10)
	if err := releaseScript.Run(ctx, l.client, []string{runLockKey(userID)}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("releasing run lock: %w", err)
	}
	return nil
}
