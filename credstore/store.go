package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	authgrid "github.com/authgrid/authgrid"
	"github.com/redis/go-redis/v9"
)

// Atomic create: reject when either identity index exists, otherwise write
// both indexes and the record in one step.
const createScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
if ARGV[2] == "1" and redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
if ARGV[2] == "1" then
  redis.call("SET", KEYS[2], ARGV[1])
end
redis.call("SET", KEYS[3], ARGV[3])
return 1
`

var createLua = redis.NewScript(createScript)

// Atomic username change: claim the new index, release the old, rewrite the
// record blob.
const renameScript = `
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
if ARGV[2] == "1" then
  redis.call("DEL", KEYS[1])
end
redis.call("SET", KEYS[2], ARGV[1])
redis.call("SET", KEYS[3], ARGV[3])
return 1
`

var renameLua = redis.NewScript(renameScript)

// Store implements [authgrid.CredentialStore] on Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a credential [Store] under the given key prefix.
func New(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "cred"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) recordKey(id string) string {
	return s.prefix + ":pr:" + id
}

func (s *Store) emailKey(scopeKey, email string) string {
	return s.prefix + ":pe:" + scopeKey + ":" + strings.ToLower(email)
}

func (s *Store) usernameKey(scopeKey, username string) string {
	return s.prefix + ":pn:" + scopeKey + ":" + strings.ToLower(username)
}

func (s *Store) historyKey(id string) string {
	return s.prefix + ":ph:" + id
}

// record is the persisted shape of a principal.
type record struct {
	ID             string    `json:"id"`
	ScopeKind      uint8     `json:"scope_kind"`
	ProjectID      string    `json:"project_id,omitempty"`
	Email          string    `json:"email"`
	Username       string    `json:"username,omitempty"`
	PasswordHash   string    `json:"password_hash,omitempty"`
	Status         uint8     `json:"status"`
	SuspendedUntil int64     `json:"suspended_until,omitempty"`
	Verification   uint8     `json:"verification"`
	Name           string    `json:"name,omitempty"`
	Deleted        bool      `json:"deleted,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toRecord(p *authgrid.Principal) *record {
	rec := &record{
		ID:           p.ID,
		ScopeKind:    uint8(p.Scope.Kind),
		ProjectID:    p.Scope.ProjectID,
		Email:        p.Email,
		Username:     p.Username,
		PasswordHash: p.PasswordHash,
		Status:       uint8(p.Status),
		Verification: uint8(p.Verification),
		Name:         p.Name,
		Deleted:      p.Deleted,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if !p.SuspendedUntil.IsZero() {
		rec.SuspendedUntil = p.SuspendedUntil.Unix()
	}
	return rec
}

func (r *record) toPrincipal() *authgrid.Principal {
	p := &authgrid.Principal{
		ID:           r.ID,
		Scope:        authgrid.Scope{Kind: authgrid.ScopeKind(r.ScopeKind), ProjectID: r.ProjectID},
		Email:        r.Email,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Status:       authgrid.AccountStatus(r.Status),
		Verification: authgrid.VerificationState(r.Verification),
		Name:         r.Name,
		Deleted:      r.Deleted,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.SuspendedUntil > 0 {
		p.SuspendedUntil = time.Unix(r.SuspendedUntil, 0)
	}
	return p
}

// Create persists a new principal, enforcing per-scope identity uniqueness.
func (s *Store) Create(ctx context.Context, p *authgrid.Principal) error {
	if p.ID == "" || p.Email == "" {
		return errors.New("principal id and email are required")
	}

	now := time.Now().UTC()
	stored := *p
	stored.CreatedAt = now
	stored.UpdatedAt = now

	blob, err := json.Marshal(toRecord(&stored))
	if err != nil {
		return err
	}

	scopeKey := p.Scope.Key()
	usernameKey := s.emailKey(scopeKey, p.Email) // placeholder when unused
	hasUsername := "0"
	if p.Username != "" {
		usernameKey = s.usernameKey(scopeKey, p.Username)
		hasUsername = "1"
	}

	result, err := createLua.Run(
		ctx,
		s.redis,
		[]string{s.emailKey(scopeKey, p.Email), usernameKey, s.recordKey(p.ID)},
		p.ID,
		hasUsername,
		blob,
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", authgrid.ErrTransient, err)
	}

	created, ok := result.(int64)
	if !ok {
		return fmt.Errorf("%w: invalid create script response", authgrid.ErrTransient)
	}
	if created == 0 {
		return authgrid.ErrDuplicateIdentity
	}

	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// FindByIdentifier resolves an email or username within the scope.
// Tombstoned principals are excluded.
func (s *Store) FindByIdentifier(ctx context.Context, scope authgrid.Scope, identifier string) (*authgrid.Principal, error) {
	scopeKey := scope.Key()

	id, err := s.redis.Get(ctx, s.emailKey(scopeKey, identifier)).Result()
	if errors.Is(err, redis.Nil) {
		id, err = s.redis.Get(ctx, s.usernameKey(scopeKey, identifier)).Result()
	}
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, authgrid.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("%w: %v", authgrid.ErrTransient, err)
	}

	return s.FindByID(ctx, id)
}

// FindByID fetches a principal record. Tombstoned principals are excluded.
func (s *Store) FindByID(ctx context.Context, id string) (*authgrid.Principal, error) {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Deleted {
		return nil, authgrid.ErrPrincipalNotFound
	}
	return rec.toPrincipal(), nil
}

// UpdatePasswordHash replaces the stored hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.mutate(ctx, id, func(rec *record) {
		rec.PasswordHash = hash
	})
}

// SetVerification updates the verification lifecycle state.
func (s *Store) SetVerification(ctx context.Context, id string, state authgrid.VerificationState) error {
	return s.mutate(ctx, id, func(rec *record) {
		rec.Verification = uint8(state)
	})
}

// UpdateStatus updates the account lifecycle status.
func (s *Store) UpdateStatus(ctx context.Context, id string, status authgrid.AccountStatus, suspendedUntil time.Time) error {
	return s.mutate(ctx, id, func(rec *record) {
		rec.Status = uint8(status)
		rec.SuspendedUntil = 0
		if status == authgrid.StatusSuspended && !suspendedUntil.IsZero() {
			rec.SuspendedUntil = suspendedUntil.Unix()
		}
	})
}

// UpdateProfile applies profile changes. A username change re-checks
// uniqueness within the scope atomically.
func (s *Store) UpdateProfile(ctx context.Context, id string, update authgrid.ProfileUpdate) error {
	if update.Username != nil {
		if err := s.rename(ctx, id, *update.Username); err != nil {
			return err
		}
	}
	if update.Name != nil {
		return s.mutate(ctx, id, func(rec *record) {
			rec.Name = *update.Name
		})
	}
	return nil
}

// AppendLoginRecord prepends a login history entry, trimming to limit.
func (s *Store) AppendLoginRecord(ctx context.Context, id string, rec authgrid.LoginRecord, limit int) error {
	if limit <= 0 {
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	key := s.historyKey(id)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(limit-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", authgrid.ErrTransient, err)
	}
	return nil
}

// LoginHistory returns the bounded history, most recent first.
func (s *Store) LoginHistory(ctx context.Context, id string) ([]authgrid.LoginRecord, error) {
	entries, err := s.redis.LRange(ctx, s.historyKey(id), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []authgrid.LoginRecord{}, nil
		}
		return nil, fmt.Errorf("%w: %v", authgrid.ErrTransient, err)
	}

	records := make([]authgrid.LoginRecord, 0, len(entries))
	for _, entry := range entries {
		var rec authgrid.LoginRecord
		if err := json.Unmarshal([]byte(entry), &rec); err != nil {
			return nil, fmt.Errorf("%w: corrupt login record", authgrid.ErrTransient)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Tombstone soft-deletes the principal: the record is flagged and its
// identity indexes removed so lookups miss.
func (s *Store) Tombstone(ctx context.Context, id string) error {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec.Deleted {
		return nil
	}

	rec.Deleted = true
	rec.UpdatedAt = time.Now().UTC()
	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	scopeKey := authgrid.Scope{Kind: authgrid.ScopeKind(rec.ScopeKind), ProjectID: rec.ProjectID}.Key()
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(id), blob, 0)
		pipe.Del(ctx, s.emailKey(scopeKey, rec.Email))
		if rec.Username != "" {
			pipe.Del(ctx, s.usernameKey(scopeKey, rec.Username))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", authgrid.ErrTransient, err)
	}
	return nil
}

func (s *Store) getRecord(ctx context.Context, id string) (*record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, authgrid.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("%w: %v", authgrid.ErrTransient, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt principal record", authgrid.ErrTransient)
	}
	return &rec, nil
}

func (s *Store) mutate(ctx context.Context, id string, apply func(*record)) error {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec.Deleted {
		return authgrid.ErrPrincipalNotFound
	}

	apply(rec)
	rec.UpdatedAt = time.Now().UTC()

	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.recordKey(id), blob, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", authgrid.ErrTransient, err)
	}
	return nil
}

func (s *Store) rename(ctx context.Context, id, newUsername string) error {
	if newUsername == "" {
		return errors.New("username must not be empty")
	}

	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec.Deleted {
		return authgrid.ErrPrincipalNotFound
	}
	if strings.EqualFold(rec.Username, newUsername) {
		return nil
	}

	scopeKey := authgrid.Scope{Kind: authgrid.ScopeKind(rec.ScopeKind), ProjectID: rec.ProjectID}.Key()
	oldKey := s.usernameKey(scopeKey, rec.Username)
	hadUsername := "0"
	if rec.Username != "" {
		hadUsername = "1"
	}

	rec.Username = newUsername
	rec.UpdatedAt = time.Now().UTC()
	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	result, err := renameLua.Run(
		ctx,
		s.redis,
		[]string{oldKey, s.usernameKey(scopeKey, newUsername), s.recordKey(id)},
		id,
		hadUsername,
		blob,
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", authgrid.ErrTransient, err)
	}

	renamed, ok := result.(int64)
	if !ok {
		return fmt.Errorf("%w: invalid rename script response", authgrid.ErrTransient)
	}
	if renamed == 0 {
		return authgrid.ErrDuplicateIdentity
	}
	return nil
}
