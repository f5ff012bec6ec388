package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable indicates the lockout backend is unreachable.
var ErrUnavailable = errors.New("lockout backend unavailable")

// Params are the policy knobs applied to one transition. They are read from
// the project policy once per authentication operation.
type Params struct {
	Enabled     bool
	MaxAttempts int
	Duration    time.Duration
}

// State is the post-transition lockout state of a principal.
type State struct {
	Attempts    int
	LockedUntil time.Time // zero when unlocked
}

// Locked reports whether the state is locked as of now.
func (s State) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && s.LockedUntil.After(now)
}

// Failure transition, atomic. An expired lock restarts the count at 1
// (not cumulative); reaching the threshold while unlocked sets the lock.
// Re-locking while already locked is not possible; further failures only
// advance the counter.
const recordFailureScript = `
local attempts = tonumber(redis.call("HGET", KEYS[1], "attempts") or "0")
local locked_until = tonumber(redis.call("HGET", KEYS[1], "locked_until") or "0")
local now = tonumber(ARGV[1])
local enabled = tonumber(ARGV[2])
local max_attempts = tonumber(ARGV[3])
local duration = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

if locked_until > 0 and locked_until <= now then
  attempts = 0
  locked_until = 0
end

attempts = attempts + 1

if enabled == 1 and attempts >= max_attempts and locked_until == 0 then
  locked_until = now + duration
end

redis.call("HSET", KEYS[1], "attempts", attempts, "locked_until", locked_until)
redis.call("PEXPIRE", KEYS[1], ttl)

return {attempts, locked_until}
`

var recordFailureLua = redis.NewScript(recordFailureScript)

// Tracker persists per-principal lockout state in Redis.
type Tracker struct {
	redis  redis.UniversalClient
	prefix string
}

// NewTracker creates a lockout [Tracker] under the given key prefix.
func NewTracker(redisClient redis.UniversalClient, prefix string) *Tracker {
	if prefix == "" {
		prefix = "lk"
	}
	return &Tracker{redis: redisClient, prefix: prefix}
}

func (t *Tracker) key(scopeKey, principalID string) string {
	return t.prefix + ":" + scopeKey + ":" + principalID
}

// Gate reads the current state without mutating it. The caller refuses
// authentication when the returned state is locked, before any password
// verification takes place.
func (t *Tracker) Gate(ctx context.Context, scopeKey, principalID string) (State, error) {
	vals, err := t.redis.HMGet(ctx, t.key(scopeKey, principalID), "attempts", "locked_until").Result()
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return stateFromFields(vals)
}

// RecordFailure applies the failure transition atomically and returns the
// resulting state. When p.Enabled is false the counter still advances but a
// lock is never set.
func (t *Tracker) RecordFailure(ctx context.Context, scopeKey, principalID string, p Params, now time.Time) (State, error) {
	enabled := 0
	if p.Enabled {
		enabled = 1
	}

	ttl := 24 * time.Hour
	if p.Duration+time.Hour > ttl {
		ttl = p.Duration + time.Hour
	}

	result, err := recordFailureLua.Run(
		ctx,
		t.redis,
		[]string{t.key(scopeKey, principalID)},
		now.UnixMilli(),
		enabled,
		p.MaxAttempts,
		p.Duration.Milliseconds(),
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return State{}, fmt.Errorf("%w: invalid failure script response", ErrUnavailable)
	}

	attempts, ok := parts[0].(int64)
	if !ok {
		return State{}, fmt.Errorf("%w: invalid failure script attempts", ErrUnavailable)
	}
	lockedUntil, ok := parts[1].(int64)
	if !ok {
		return State{}, fmt.Errorf("%w: invalid failure script lock", ErrUnavailable)
	}

	state := State{Attempts: int(attempts)}
	if lockedUntil > 0 {
		state.LockedUntil = time.UnixMilli(lockedUntil)
	}
	return state, nil
}

// Reset applies the success transition: attempts back to 0 and any lock
// cleared, unconditionally, so stale state self-heals even when locking is
// disabled by policy.
func (t *Tracker) Reset(ctx context.Context, scopeKey, principalID string) error {
	if err := t.redis.Del(ctx, t.key(scopeKey, principalID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func stateFromFields(vals []interface{}) (State, error) {
	var state State

	if len(vals) != 2 {
		return state, fmt.Errorf("%w: invalid lockout fields", ErrUnavailable)
	}

	attempts, err := fieldInt64(vals[0])
	if err != nil {
		return state, err
	}
	lockedUntil, err := fieldInt64(vals[1])
	if err != nil {
		return state, err
	}

	state.Attempts = int(attempts)
	if lockedUntil > 0 {
		state.LockedUntil = time.UnixMilli(lockedUntil)
	}
	return state, nil
}

func fieldInt64(v interface{}) (int64, error) {
	switch f := v.(type) {
	case nil:
		return 0, nil
	case string:
		var n int64
		if _, err := fmt.Sscan(f, &n); err != nil {
			return 0, fmt.Errorf("%w: corrupt lockout field", ErrUnavailable)
		}
		return n, nil
	case int64:
		return f, nil
	default:
		return 0, fmt.Errorf("%w: corrupt lockout field", ErrUnavailable)
	}
}
