package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/authkit/pkg/store"
)

// Key layout. Secondary index keys hold the primary key of the record they
// point at; sessions are hashes so Lua scripts can test liveness cheaply.
const (
	keyUser         = "authkit:u:"       // + user id -> JSON
	keyUserEmail    = "authkit:u_email:" // + email -> user id
	keyAccount      = "authkit:a:"       // + account id -> JSON
	keyAccountProv  = "authkit:a_prov:"  // + provider \x1f provider account id -> account id
	keyAccountUser  = "authkit:a_user:"  // + user id -> set of account ids
	keySession      = "authkit:s:"       // + token -> hash
	keySessionUser  = "authkit:s_user:"  // + user id -> set of tokens
	keyVerification = "authkit:v:"       // + value -> JSON
	keyOrg          = "authkit:o:"       // + org id -> JSON
	keyMember       = "authkit:m:"       // + org id \x1f user id -> JSON
	keyMemberOrg    = "authkit:m_org:"   // + org id -> set of user ids
	keyMemberUser   = "authkit:m_user:"  // + user id -> set of org ids
)

const sep = "\x1f"

// Revoked and expired session hashes stick around for this long so lazy
// expiry and rotation losers still observe a terminal record instead of a
// missing one.
const tombstoneGrace = 24 * time.Hour

// Adapter implements the full storage contract on Redis.
type Adapter struct {
	rdb *redis.Client
}

// NewAdapter wraps a connected Redis client.
func NewAdapter(rdb *redis.Client) *Adapter {
	return &Adapter{rdb: rdb}
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.rdb.Close()
}

func getJSON[T any](ctx context.Context, rdb *redis.Client, key string) (*T, error) {
	data, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	return &v, nil
}

func setJSON(ctx context.Context, rdb *redis.Client, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	if err := rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// --- users ---

func (a *Adapter) CreateUser(ctx context.Context, user *store.User) error {
	ok, err := a.rdb.SetNX(ctx, keyUserEmail+user.Email, user.ID.String(), 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return store.ErrConflict
	}
	if err := setJSON(ctx, a.rdb, keyUser+user.ID.String(), user); err != nil {
		_ = a.rdb.Del(ctx, keyUserEmail+user.Email).Err()
		return err
	}
	return nil
}

func (a *Adapter) GetUserByID(ctx context.Context, id uuid.UUID) (*store.User, error) {
	return getJSON[store.User](ctx, a.rdb, keyUser+id.String())
}

func (a *Adapter) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	id, err := a.rdb.Get(ctx, keyUserEmail+email).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return getJSON[store.User](ctx, a.rdb, keyUser+id)
}

func (a *Adapter) UpdateUser(ctx context.Context, user *store.User) error {
	current, err := a.GetUserByID(ctx, user.ID)
	if err != nil {
		return err
	}

	if current.Email != user.Email {
		ok, err := a.rdb.SetNX(ctx, keyUserEmail+user.Email, user.ID.String(), 0).Result()
		if err != nil {
			return fmt.Errorf("redis setnx: %w", err)
		}
		if !ok {
			return store.ErrConflict
		}
		_ = a.rdb.Del(ctx, keyUserEmail+current.Email).Err()
	}

	return setJSON(ctx, a.rdb, keyUser+user.ID.String(), user)
}

func (a *Adapter) DeleteUser(ctx context.Context, id uuid.UUID) error {
	user, err := a.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	// Accounts.
	accountIDs, err := a.rdb.SMembers(ctx, keyAccountUser+id.String()).Result()
	if err != nil {
		return fmt.Errorf("redis smembers: %w", err)
	}
	for _, accID := range accountIDs {
		if account, err := getJSON[store.Account](ctx, a.rdb, keyAccount+accID); err == nil {
			_ = a.rdb.Del(ctx, keyAccountProv+account.Provider+sep+account.ProviderAccountID).Err()
		}
		_ = a.rdb.Del(ctx, keyAccount+accID).Err()
	}
	_ = a.rdb.Del(ctx, keyAccountUser+id.String()).Err()

	// Sessions are revoked, not deleted, so live tokens turn terminal.
	if err := a.RevokeUserSessions(ctx, id); err != nil {
		return err
	}

	// Memberships.
	orgIDs, err := a.rdb.SMembers(ctx, keyMemberUser+id.String()).Result()
	if err != nil {
		return fmt.Errorf("redis smembers: %w", err)
	}
	for _, orgID := range orgIDs {
		_ = a.rdb.Del(ctx, keyMember+orgID+sep+id.String()).Err()
		_ = a.rdb.SRem(ctx, keyMemberOrg+orgID, id.String()).Err()
	}
	_ = a.rdb.Del(ctx, keyMemberUser+id.String()).Err()

	pipe := a.rdb.Pipeline()
	pipe.Del(ctx, keyUser+id.String())
	pipe.Del(ctx, keyUserEmail+user.Email)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// --- accounts ---

func (a *Adapter) CreateAccount(ctx context.Context, account *store.Account) error {
	provKey := keyAccountProv + account.Provider + sep + account.ProviderAccountID
	ok, err := a.rdb.SetNX(ctx, provKey, account.ID.String(), 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return store.ErrConflict
	}
	if err := setJSON(ctx, a.rdb, keyAccount+account.ID.String(), account); err != nil {
		_ = a.rdb.Del(ctx, provKey).Err()
		return err
	}
	if err := a.rdb.SAdd(ctx, keyAccountUser+account.UserID.String(), account.ID.String()).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

func (a *Adapter) GetAccountByProvider(ctx context.Context, provider, providerAccountID string) (*store.Account, error) {
	id, err := a.rdb.Get(ctx, keyAccountProv+provider+sep+providerAccountID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return getJSON[store.Account](ctx, a.rdb, keyAccount+id)
}

func (a *Adapter) GetAccountByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) (*store.Account, error) {
	accounts, err := a.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, account := range accounts {
		if account.Provider == provider {
			return account, nil
		}
	}
	return nil, store.ErrNotFound
}

func (a *Adapter) ListAccountsByUser(ctx context.Context, userID uuid.UUID) ([]*store.Account, error) {
	ids, err := a.rdb.SMembers(ctx, keyAccountUser+userID.String()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	accounts := make([]*store.Account, 0, len(ids))
	for _, id := range ids {
		account, err := getJSON[store.Account](ctx, a.rdb, keyAccount+id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (a *Adapter) UpdateAccount(ctx context.Context, account *store.Account) error {
	key := keyAccount + account.ID.String()
	exists, err := a.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis exists: %w", err)
	}
	if exists == 0 {
		return store.ErrNotFound
	}
	return setJSON(ctx, a.rdb, key, account)
}

func (a *Adapter) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	account, err := getJSON[store.Account](ctx, a.rdb, keyAccount+id.String())
	if err != nil {
		return err
	}

	pipe := a.rdb.Pipeline()
	pipe.Del(ctx, keyAccount+id.String())
	pipe.Del(ctx, keyAccountProv+account.Provider+sep+account.ProviderAccountID)
	pipe.SRem(ctx, keyAccountUser+account.UserID.String(), id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// --- sessions ---

func sessionFields(s *store.Session) map[string]any {
	revoked := "0"
	if s.Revoked {
		revoked = "1"
	}
	return map[string]any{
		"id":         s.ID.String(),
		"token":      s.Token,
		"user_id":    s.UserID.String(),
		"rotations":  strconv.Itoa(s.Rotations),
		"revoked":    revoked,
		"created_at": strconv.FormatInt(s.CreatedAt.UnixMilli(), 10),
		"expires_at": strconv.FormatInt(s.ExpiresAt.UnixMilli(), 10),
	}
}

func sessionFromFields(fields map[string]string) (*store.Session, error) {
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}
	id, err := uuid.Parse(fields["id"])
	if err != nil {
		return nil, fmt.Errorf("%w: bad session id", store.ErrInvalidRecord)
	}
	userID, err := uuid.Parse(fields["user_id"])
	if err != nil {
		return nil, fmt.Errorf("%w: bad session user id", store.ErrInvalidRecord)
	}
	rotations, _ := strconv.Atoi(fields["rotations"])
	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	expiresAt, _ := strconv.ParseInt(fields["expires_at"], 10, 64)

	return &store.Session{
		ID:        id,
		Token:     fields["token"],
		UserID:    userID,
		Rotations: rotations,
		Revoked:   fields["revoked"] == "1",
		CreatedAt: time.UnixMilli(createdAt),
		ExpiresAt: time.UnixMilli(expiresAt),
	}, nil
}

// createSessionScript refuses to overwrite a live session at the same token.
var createSessionScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
if redis.call('EXISTS', key) == 1 then
  local revoked = redis.call('HGET', key, 'revoked')
  local exp = tonumber(redis.call('HGET', key, 'expires_at'))
  if revoked == '0' and exp > now then
    return 0
  end
  redis.call('DEL', key)
end
redis.call('HSET', key, 'id', ARGV[2], 'token', ARGV[3], 'user_id', ARGV[4],
  'rotations', ARGV[5], 'revoked', ARGV[6], 'created_at', ARGV[7], 'expires_at', ARGV[8])
redis.call('PEXPIREAT', key, tonumber(ARGV[8]) + tonumber(ARGV[9]))
return 1
`)

func (a *Adapter) CreateSession(ctx context.Context, session *store.Session) error {
	f := sessionFields(session)
	res, err := createSessionScript.Run(ctx, a.rdb, []string{keySession + session.Token},
		time.Now().UnixMilli(), f["id"], f["token"], f["user_id"], f["rotations"],
		f["revoked"], f["created_at"], f["expires_at"], tombstoneGrace.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis script: %w", err)
	}
	if res == 0 {
		return store.ErrConflict
	}
	if err := a.rdb.SAdd(ctx, keySessionUser+session.UserID.String(), session.Token).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

func (a *Adapter) GetSessionByToken(ctx context.Context, token string) (*store.Session, error) {
	fields, err := a.rdb.HGetAll(ctx, keySession+token).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	return sessionFromFields(fields)
}

// rotateSessionScript installs the new token and kills the old one in a
// single step. Returns nil when the old token is not live, which is what a
// rotation loser observes.
var rotateSessionScript = redis.NewScript(`
local old = KEYS[1]
local new = KEYS[2]
local userset = KEYS[3]
local now = tonumber(ARGV[1])
local newtoken = ARGV[2]
local newexp = tonumber(ARGV[3])
local grace = tonumber(ARGV[4])
if redis.call('EXISTS', old) == 0 then return nil end
local revoked = redis.call('HGET', old, 'revoked')
local exp = tonumber(redis.call('HGET', old, 'expires_at'))
if revoked ~= '0' or exp <= now then return nil end
local rotations = tonumber(redis.call('HGET', old, 'rotations')) + 1
redis.call('HSET', new,
  'id', redis.call('HGET', old, 'id'),
  'token', newtoken,
  'user_id', redis.call('HGET', old, 'user_id'),
  'rotations', tostring(rotations),
  'revoked', '0',
  'created_at', redis.call('HGET', old, 'created_at'),
  'expires_at', tostring(newexp))
redis.call('PEXPIREAT', new, newexp + grace)
redis.call('HSET', old, 'revoked', '1')
redis.call('PEXPIRE', old, grace)
redis.call('SADD', userset, newtoken)
return redis.call('HGETALL', new)
`)

func (a *Adapter) RotateSession(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (*store.Session, error) {
	current, err := a.GetSessionByToken(ctx, oldToken)
	if err != nil {
		return nil, err
	}

	res, err := rotateSessionScript.Run(ctx, a.rdb,
		[]string{keySession + oldToken, keySession + newToken, keySessionUser + current.UserID.String()},
		time.Now().UnixMilli(), newToken, expiresAt.UnixMilli(), tombstoneGrace.Milliseconds(),
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("redis script: %w", err)
	}

	return sessionFromScriptReply(res)
}

// extendSessionScript moves the expiry of a live session.
var extendSessionScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local newexp = tonumber(ARGV[2])
local grace = tonumber(ARGV[3])
if redis.call('EXISTS', key) == 0 then return nil end
local revoked = redis.call('HGET', key, 'revoked')
local exp = tonumber(redis.call('HGET', key, 'expires_at'))
if revoked ~= '0' or exp <= now then return nil end
redis.call('HSET', key, 'expires_at', tostring(newexp))
redis.call('PEXPIREAT', key, newexp + grace)
return redis.call('HGETALL', key)
`)

func (a *Adapter) ExtendSession(ctx context.Context, token string, expiresAt time.Time) (*store.Session, error) {
	res, err := extendSessionScript.Run(ctx, a.rdb, []string{keySession + token},
		time.Now().UnixMilli(), expiresAt.UnixMilli(), tombstoneGrace.Milliseconds(),
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("redis script: %w", err)
	}
	return sessionFromScriptReply(res)
}

func sessionFromScriptReply(res any) (*store.Session, error) {
	reply, ok := res.([]any)
	if !ok || len(reply)%2 != 0 {
		return nil, store.ErrNotFound
	}
	fields := make(map[string]string, len(reply)/2)
	for i := 0; i+1 < len(reply); i += 2 {
		k, _ := reply[i].(string)
		v, _ := reply[i+1].(string)
		fields[k] = v
	}
	return sessionFromFields(fields)
}

func (a *Adapter) RevokeSession(ctx context.Context, token string) error {
	key := keySession + token
	exists, err := a.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis exists: %w", err)
	}
	if exists == 0 {
		return nil
	}
	if err := a.rdb.HSet(ctx, key, "revoked", "1").Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	if err := a.rdb.PExpire(ctx, key, tombstoneGrace).Err(); err != nil {
		return fmt.Errorf("redis pexpire: %w", err)
	}
	return nil
}

func (a *Adapter) RevokeUserSessions(ctx context.Context, userID uuid.UUID) error {
	tokens, err := a.rdb.SMembers(ctx, keySessionUser+userID.String()).Result()
	if err != nil {
		return fmt.Errorf("redis smembers: %w", err)
	}
	for _, token := range tokens {
		if err := a.RevokeSession(ctx, token); err != nil {
			return err
		}
	}
	return nil
}

// DeleteExpiredSessions is a no-op: session keys carry a PEXPIREAT and
// Redis reclaims them itself.
func (a *Adapter) DeleteExpiredSessions(ctx context.Context) error {
	return nil
}

// --- verifications ---

func (a *Adapter) CreateVerification(ctx context.Context, verification *store.Verification) error {
	data, err := json.Marshal(verification)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	// Keep the record past its logical expiry so consumption can still
	// distinguish expired from never-issued within the grace window.
	ttl := time.Until(verification.ExpiresAt) + tombstoneGrace
	if ttl <= 0 {
		ttl = tombstoneGrace
	}
	ok, err := a.rdb.SetNX(ctx, keyVerification+verification.Value, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return store.ErrConflict
	}
	return nil
}

func (a *Adapter) ConsumeVerification(ctx context.Context, value string) (*store.Verification, error) {
	data, err := a.rdb.GetDel(ctx, keyVerification+value).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("redis getdel: %w", err)
	}
	var verification store.Verification
	if err := json.Unmarshal(data, &verification); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	return &verification, nil
}

// DeleteExpiredVerifications is a no-op: verification keys carry a TTL.
func (a *Adapter) DeleteExpiredVerifications(ctx context.Context) error {
	return nil
}

// --- organizations ---

func (a *Adapter) CreateOrganization(ctx context.Context, org *store.Organization) error {
	return setJSON(ctx, a.rdb, keyOrg+org.ID.String(), org)
}

func (a *Adapter) GetOrganizationByID(ctx context.Context, id uuid.UUID) (*store.Organization, error) {
	return getJSON[store.Organization](ctx, a.rdb, keyOrg+id.String())
}

func (a *Adapter) DeleteOrganization(ctx context.Context, id uuid.UUID) error {
	if _, err := a.GetOrganizationByID(ctx, id); err != nil {
		return err
	}

	userIDs, err := a.rdb.SMembers(ctx, keyMemberOrg+id.String()).Result()
	if err != nil {
		return fmt.Errorf("redis smembers: %w", err)
	}
	for _, userID := range userIDs {
		_ = a.rdb.Del(ctx, keyMember+id.String()+sep+userID).Err()
		_ = a.rdb.SRem(ctx, keyMemberUser+userID, id.String()).Err()
	}

	pipe := a.rdb.Pipeline()
	pipe.Del(ctx, keyMemberOrg+id.String())
	pipe.Del(ctx, keyOrg+id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

func (a *Adapter) CreateMember(ctx context.Context, member *store.Member) error {
	key := keyMember + member.OrgID.String() + sep + member.UserID.String()
	data, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	ok, err := a.rdb.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return store.ErrConflict
	}

	pipe := a.rdb.Pipeline()
	pipe.SAdd(ctx, keyMemberOrg+member.OrgID.String(), member.UserID.String())
	pipe.SAdd(ctx, keyMemberUser+member.UserID.String(), member.OrgID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

func (a *Adapter) GetMember(ctx context.Context, userID, orgID uuid.UUID) (*store.Member, error) {
	return getJSON[store.Member](ctx, a.rdb, keyMember+orgID.String()+sep+userID.String())
}

func (a *Adapter) UpdateMember(ctx context.Context, member *store.Member) error {
	key := keyMember + member.OrgID.String() + sep + member.UserID.String()
	exists, err := a.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis exists: %w", err)
	}
	if exists == 0 {
		return store.ErrNotFound
	}
	return setJSON(ctx, a.rdb, key, member)
}

func (a *Adapter) DeleteMember(ctx context.Context, userID, orgID uuid.UUID) error {
	key := keyMember + orgID.String() + sep + userID.String()
	deleted, err := a.rdb.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if deleted == 0 {
		return store.ErrNotFound
	}

	pipe := a.rdb.Pipeline()
	pipe.SRem(ctx, keyMemberOrg+orgID.String(), userID.String())
	pipe.SRem(ctx, keyMemberUser+userID.String(), orgID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

func (a *Adapter) ListMembers(ctx context.Context, orgID uuid.UUID) ([]*store.Member, error) {
	userIDs, err := a.rdb.SMembers(ctx, keyMemberOrg+orgID.String()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	members := make([]*store.Member, 0, len(userIDs))
	for _, userID := range userIDs {
		member, err := getJSON[store.Member](ctx, a.rdb, keyMember+orgID.String()+sep+userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		members = append(members, member)
	}
	return members, nil
}

var _ store.Adapter = (*Adapter)(nil)
