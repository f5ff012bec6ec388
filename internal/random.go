package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// ChallengeID is the public half of an opaque challenge token (password
// reset, email verification). 16 random bytes, base64url on the wire.
type ChallengeID [16]byte

const (
	challengeSecretSize   = 32
	challengeTokenRawSize = 16 + challengeSecretSize
)

// NewChallengeID returns a fresh random challenge ID.
func NewChallengeID() (ChallengeID, error) {
	var id ChallengeID
	_, err := rand.Read(id[:])
	return id, err
}

func (c ChallengeID) String() string {
	return base64.RawURLEncoding.EncodeToString(c[:])
}

// ParseChallengeID decodes a base64url challenge ID.
func ParseChallengeID(s string) (ChallengeID, error) {
	var id ChallengeID

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid challenge id size")
	}

	copy(id[:], raw)
	return id, nil
}

// NewChallengeSecret returns the private half of a challenge token.
func NewChallengeSecret() ([challengeSecretSize]byte, error) {
	var secret [challengeSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashChallengeSecret digests a challenge secret for storage. Only the
// digest is persisted; a storage read compromise never yields usable tokens.
func HashChallengeSecret(secret [challengeSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// HashTokenString digests an arbitrary token string (refresh tokens are
// persisted in session records only as this digest).
func HashTokenString(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// EncodeChallengeToken packs challenge ID and secret into one opaque
// base64url string handed to the user via email.
func EncodeChallengeToken(id ChallengeID, secret [challengeSecretSize]byte) string {
	var raw [challengeTokenRawSize]byte
	copy(raw[:len(id)], id[:])
	copy(raw[len(id):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:])
}

// DecodeChallengeToken splits an opaque challenge token back into ID and
// secret. Any structural defect is an error; callers map it to their
// uniform invalid-token result.
func DecodeChallengeToken(token string) (ChallengeID, [challengeSecretSize]byte, error) {
	var (
		id     ChallengeID
		secret [challengeSecretSize]byte
	)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return id, secret, err
	}
	if len(raw) != challengeTokenRawSize {
		return id, secret, errors.New("invalid challenge token size")
	}

	copy(id[:], raw[:len(id)])
	copy(secret[:], raw[len(id):])

	return id, secret, nil
}

// NewSessionID returns a fresh random session identifier in base64url form.
func NewSessionID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// RandomString returns n random bytes base64url-encoded (no padding).
func RandomString(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("invalid random length")
	}

	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
