// Package lockout counts failed authentication attempts per identity in
// Redis and imposes a timed lockout once the configured threshold is
// reached.
//
// Two keys exist per identity: a failure counter with a fixed-window TTL
// and a lock key whose value is the unlock time in unix seconds and whose
// TTL matches the lock duration. The counter INCR and the lock SETNX are
// both atomic, so concurrent failures agree on a single locking
// transition.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis failures; callers treat the identity as
// locked when the check cannot be made.
var ErrUnavailable = errors.New("lockout backend unavailable")

// Config for one Tracker.
type Config struct {
	// Threshold is the failure count that imposes the lock.
	Threshold int
	// LockDuration is how long the lock lasts.
	LockDuration time.Duration
	// FailureWindow bounds how long sub-threshold failures persist.
	// Zero means LockDuration.
	FailureWindow time.Duration
	// Prefix namespaces the Redis keys.
	Prefix string
}

// Status is the result of recording a failure.
type Status struct {
	// Attempts is the count after this failure. Zero when the attempt was
	// refused because the identity is locked.
	Attempts int
	Locked   bool
	// JustLocked marks the failure that imposed the lock.
	JustLocked bool
	Until      time.Time
}

// Tracker is safe for concurrent use; all state lives in Redis.
type Tracker struct {
	redis  redis.UniversalClient
	config Config
}

func New(client redis.UniversalClient, cfg Config) *Tracker {
	if cfg.Prefix == "" {
		cfg.Prefix = "lko"
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = cfg.LockDuration
	}
	return &Tracker{redis: client, config: cfg}
}

func (t *Tracker) counterKey(identity string) string {
	return t.config.Prefix + ":n:" + identity
}

func (t *Tracker) lockKey(identity string) string {
	return t.config.Prefix + ":l:" + identity
}

// Locked reports whether identity is locked and until when. Expiry is
// lazy: the Redis TTL normally removes the lock key, and a still-present
// key whose stored unlock time has passed is cleared on read.
func (t *Tracker) Locked(ctx context.Context, identity string) (bool, time.Time, error) {
	raw, err := t.redis.Get(ctx, t.lockKey(identity)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, time.Time{}, nil
		}
		return false, time.Time{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("%w: corrupt lock value", ErrUnavailable)
	}
	until := time.Unix(unix, 0)
	if !time.Now().Before(until) {
		if err := t.redis.Del(ctx, t.lockKey(identity), t.counterKey(identity)).Err(); err != nil {
			return false, time.Time{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return false, time.Time{}, nil
	}
	return true, until, nil
}

// RecordFailure counts one failed attempt. Failures against a locked
// identity are refused: the counter does not move and the lock is never
// extended. Reaching the threshold imposes the lock and resets the
// counter.
func (t *Tracker) RecordFailure(ctx context.Context, identity string) (Status, error) {
	locked, until, err := t.Locked(ctx, identity)
	if err != nil {
		return Status{}, err
	}
	if locked {
		return Status{Locked: true, Until: until}, nil
	}

	count, err := t.redis.Incr(ctx, t.counterKey(identity)).Result()
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		// Fixed window: the TTL is armed by the first failure only.
		if err := t.redis.Expire(ctx, t.counterKey(identity), t.config.FailureWindow).Err(); err != nil {
			return Status{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if count < int64(t.config.Threshold) {
		return Status{Attempts: int(count)}, nil
	}

	until = lockDeadline(time.Now(), t.config.LockDuration)
	set, err := t.redis.SetNX(ctx, t.lockKey(identity), strconv.FormatInt(until.Unix(), 10), time.Until(until)).Result()
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !set {
		// A concurrent failure locked the identity first; report its
		// deadline rather than ours.
		locked, existing, err := t.Locked(ctx, identity)
		if err != nil {
			return Status{}, err
		}
		if locked {
			until = existing
		}
		return Status{Attempts: int(count), Locked: true, Until: until}, nil
	}
	if err := t.redis.Del(ctx, t.counterKey(identity)).Err(); err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Status{Attempts: int(count), Locked: true, JustLocked: true, Until: until}, nil
}

// RecordSuccess clears the failure counter. An active lock is never
// lifted early by a success.
func (t *Tracker) RecordSuccess(ctx context.Context, identity string) error {
	if err := t.redis.Del(ctx, t.counterKey(identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// FailureCount reads the current window's count; a missing key is zero.
func (t *Tracker) FailureCount(ctx context.Context, identity string) (int, error) {
	count, err := t.redis.Get(ctx, t.counterKey(identity)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(count), nil
}

// lockDeadline rounds up to whole seconds so the stored unix value never
// undercuts the promised duration.
func lockDeadline(now time.Time, d time.Duration) time.Time {
	deadline := now.Add(d)
	unix := deadline.Unix()
	if deadline.After(time.Unix(unix, 0)) {
		unix++
	}
	return time.Unix(unix, 0)
}
