package authgrid

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// challengeKind separates password reset and email verification challenges in
// storage so a token of one kind can never redeem the other.
type challengeKind byte

const (
	challengeReset challengeKind = iota + 1
	challengeVerifyEmail
)

const (
	challengeKeyPrefix      = "ac"
	challengeRecordVersionV = 1
)

var (
	errChallengeNotFound         = errors.New("challenge record not found")
	errChallengeSecretMismatch   = errors.New("challenge secret mismatch")
	errChallengeAttemptsExceeded = errors.New("challenge attempts exceeded")
	errChallengeRedisUnavailable = errors.New("challenge redis unavailable")
)

// challengeRecord holds one outstanding reset or verification grant. Only the
// SHA-256 of the secret is stored.
type challengeRecord struct {
	PrincipalID string
	SecretHash  [32]byte
	ExpiresAt   int64
	Attempts    uint16
	Kind        challengeKind
}

type challengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func newChallengeStore(redisClient redis.UniversalClient) *challengeStore {
	return &challengeStore{
		redis:  redisClient,
		prefix: challengeKeyPrefix,
	}
}

func (s *challengeStore) key(kind challengeKind, scopeKey, challengeID string) string {
	return fmt.Sprintf("%s:%d:%s:%s", s.prefix, kind, scopeKey, challengeID)
}

func (s *challengeStore) Save(
	ctx context.Context,
	kind challengeKind,
	scopeKey, challengeID string,
	record *challengeRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(kind, scopeKey, challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}

	return nil
}

// Consume atomically redeems a challenge: a matching secret deletes the record
// and returns it, a mismatch burns one attempt, and exhausting maxAttempts
// deletes the record. Runs under WATCH so two concurrent redemptions cannot
// both succeed.
func (s *challengeStore) Consume(
	ctx context.Context,
	kind challengeKind,
	scopeKey, challengeID string,
	providedHash [32]byte,
	maxAttempts int,
) (*challengeRecord, error) {
	return s.redeem(ctx, kind, scopeKey, challengeID, providedHash, maxAttempts, true)
}

// Verify checks a challenge like Consume but leaves a matching record in
// place, so the caller can run further validation and Delete only once the
// whole operation succeeds. Mismatches still burn attempts.
func (s *challengeStore) Verify(
	ctx context.Context,
	kind challengeKind,
	scopeKey, challengeID string,
	providedHash [32]byte,
	maxAttempts int,
) (*challengeRecord, error) {
	return s.redeem(ctx, kind, scopeKey, challengeID, providedHash, maxAttempts, false)
}

func (s *challengeStore) redeem(
	ctx context.Context,
	kind challengeKind,
	scopeKey, challengeID string,
	providedHash [32]byte,
	maxAttempts int,
	deleteOnMatch bool,
) (*challengeRecord, error) {
	const maxRetries = 4
	key := s.key(kind, scopeKey, challengeID)

	for i := 0; i < maxRetries; i++ {
		var matched *challengeRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallengeRecord(data)
			if err != nil {
				return err
			}

			now := time.Now()
			if now.Unix() > record.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeNotFound
			}

			if record.Kind != kind {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeSecretMismatch
			}

			if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return errChallengeAttemptsExceeded
				}

				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					})
					if err != nil {
						return err
					}
					return errChallengeNotFound
				}

				updated, err := encodeChallengeRecord(record)
				if err != nil {
					return err
				}

				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return errChallengeSecretMismatch
			}

			if deleteOnMatch {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
			}

			matched = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil), errors.Is(err, errChallengeNotFound), errors.Is(err, errChallengeSecretMismatch), errors.Is(err, errChallengeAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
			}
		}

		return matched, nil
	}

	return nil, errChallengeNotFound
}

func (s *challengeStore) Delete(ctx context.Context, kind challengeKind, scopeKey, challengeID string) error {
	if err := s.redis.Del(ctx, s.key(kind, scopeKey, challengeID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errChallengeRedisUnavailable, err)
	}
	return nil
}

func encodeChallengeRecord(record *challengeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersionV)
	buf.WriteByte(byte(record.Kind))

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.PrincipalID) > 65535 {
		return nil, errors.New("challenge record principal id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.PrincipalID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.PrincipalID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*challengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV {
		return nil, errors.New("invalid challenge record version")
	}

	kind, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &challengeRecord{
		Kind: challengeKind(kind),
	}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var principalIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &principalIDLen); err != nil {
		return nil, err
	}

	principalID := make([]byte, principalIDLen)
	if _, err := io.ReadFull(reader, principalID); err != nil {
		return nil, err
	}
	record.PrincipalID = string(principalID)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
