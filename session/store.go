package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// ErrUnavailable indicates the session backend is unreachable.
var ErrUnavailable = errors.New("session backend unavailable")

// Append the new session ID and evict oldest entries while over the cap.
// Runs as one script so concurrent logins for the same principal cannot
// both observe the list under the cap and overshoot it.
const addSessionScript = `
redis.call("RPUSH", KEYS[1], ARGV[1])
local evicted = {}
local max = tonumber(ARGV[2])
if max > 0 then
  while redis.call("LLEN", KEYS[1]) > max do
    local oldest = redis.call("LPOP", KEYS[1])
    if not oldest then
      break
    end
    table.insert(evicted, oldest)
    redis.call("DEL", ARGV[3] .. oldest)
  end
end
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return evicted
`

var addSessionLua = redis.NewScript(addSessionScript)

// Store is the Redis-backed session registry.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] under the given key prefix.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ag"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) sessionKeyPrefix(scopeKey string) string {
	return s.prefix + ":s:" + scopeKey + ":"
}

func (s *Store) sessionKey(scopeKey, sessionID string) string {
	return s.sessionKeyPrefix(scopeKey) + sessionID
}

func (s *Store) indexKey(scopeKey, principalID string) string {
	return s.prefix + ":x:" + scopeKey + ":" + principalID
}

// Add persists the session and appends it to the principal's ordered list,
// evicting the oldest sessions while the list exceeds maxSessions. Returns
// the evicted session IDs (empty in the common case).
func (s *Store) Add(ctx context.Context, scopeKey string, sess *Session, ttl time.Duration, maxSessions int) ([]string, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}

	if err := s.redis.Set(ctx, s.sessionKey(scopeKey, sess.SessionID), data, ttl).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	result, err := addSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.indexKey(scopeKey, sess.PrincipalID)},
		sess.SessionID,
		maxSessions,
		s.sessionKeyPrefix(scopeKey),
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: invalid eviction script response", ErrUnavailable)
	}

	evicted := make([]string, 0, len(parts))
	for _, part := range parts {
		id, ok := part.(string)
		if !ok {
			return nil, fmt.Errorf("%w: invalid eviction script entry", ErrUnavailable)
		}
		evicted = append(evicted, id)
	}

	return evicted, nil
}

// Get retrieves one session. Expired or missing sessions return ErrNotFound.
func (s *Store) Get(ctx context.Context, scopeKey, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(scopeKey, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: corrupt session record", ErrUnavailable)
	}

	return &sess, nil
}

// Touch updates the session's last-active timestamp without resetting its
// TTL. Advisory only; a lost touch is harmless.
func (s *Store) Touch(ctx context.Context, scopeKey, sessionID string, at time.Time) error {
	sess, err := s.Get(ctx, scopeKey, sessionID)
	if err != nil {
		return err
	}

	sess.LastActiveAt = at.Unix()
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.sessionKey(scopeKey, sessionID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Revoke removes one session and its index entry (logout).
func (s *Store) Revoke(ctx context.Context, scopeKey, principalID, sessionID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, s.indexKey(scopeKey, principalID), 0, sessionID)
		pipe.Del(ctx, s.sessionKey(scopeKey, sessionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeAll removes every session of the principal (logout-all, password
// change, password reset).
func (s *Store) RevokeAll(ctx context.Context, scopeKey, principalID string) error {
	indexKey := s.indexKey(scopeKey, principalID)

	sessionIDs, err := s.redis.LRange(ctx, indexKey, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sessionID := range sessionIDs {
			pipe.Del(ctx, s.sessionKey(scopeKey, sessionID))
		}
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// List returns the principal's sessions oldest-first, skipping entries whose
// records have expired out from under the index.
func (s *Store) List(ctx context.Context, scopeKey, principalID string) ([]*Session, error) {
	sessionIDs, err := s.redis.LRange(ctx, s.indexKey(scopeKey, principalID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(sessionIDs) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(sessionIDs))
	for i, sessionID := range sessionIDs {
		cmds[i] = pipe.Get(ctx, s.sessionKey(scopeKey, sessionID))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := time.Now()
	sessions := make([]*Session, 0, len(sessionIDs))
	for _, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, cmdErr)
		}

		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return nil, fmt.Errorf("%w: corrupt session record", ErrUnavailable)
		}
		if !sess.Live(now) {
			continue
		}
		sessions = append(sessions, &sess)
	}

	return sessions, nil
}
