package devserver

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ecochallenge/ecoauth/internal"
	"github.com/redis/go-redis/v9"
)

var (
	errSessionNotFound  = errors.New("refresh session not found")
	errSessionMismatch  = errors.New("refresh secret mismatch")
	errRedisUnavailable = errors.New("redis unavailable")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMismatch int64 = 1
	rotateStatusOK       int64 = 2
)

// rotateSessionScript checks the presented secret hash and, when ARGV[2] is not
// empty, replaces it atomically. It returns {status, user id}.
const rotateSessionScript = `
local hash = redis.call("HGET", KEYS[1], "hash")
if not hash then
  return {0, ""}
end
if hash ~= ARGV[1] then
  return {1, ""}
end
local user = redis.call("HGET", KEYS[1], "user")
if ARGV[2] ~= "" then
  redis.call("HSET", KEYS[1], "hash", ARGV[2])
end
return {2, user}
`

var rotateSessionLua = redis.NewScript(rotateSessionScript)

// sessionStore keeps one redis hash per refresh session plus an index set used
// to revoke them all.
type sessionStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func (s *sessionStore) key(sid internal.SessionID) string {
	return s.prefix + ":session:" + sid.String()
}

func (s *sessionStore) indexKey() string {
	return s.prefix + ":sessions"
}

// Create opens a session for userID and returns its opaque refresh token.
func (s *sessionStore) Create(ctx context.Context, userID int) (string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return "", err
	}
	hash := secret.Hash()

	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, s.key(sid), "user", strconv.Itoa(userID), "hash", hex.EncodeToString(hash[:]))
	pipe.Expire(ctx, s.key(sid), s.ttl)
	pipe.SAdd(ctx, s.indexKey(), sid.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	return internal.EncodeRefreshToken(sid, secret), nil
}

// Use validates token and returns the session owner. With rotate set it also
// replaces the secret and returns the new refresh token; the presented one stops
// working immediately.
func (s *sessionStore) Use(ctx context.Context, token string, rotate bool) (userID int, next string, err error) {
	sid, secret, err := internal.DecodeRefreshToken(token)
	if err != nil {
		return 0, "", errSessionNotFound
	}
	presented := secret.Hash()

	nextHash := ""
	if rotate {
		fresh, err := internal.NewRefreshSecret()
		if err != nil {
			return 0, "", err
		}
		h := fresh.Hash()
		nextHash = hex.EncodeToString(h[:])
		next = internal.EncodeRefreshToken(sid, fresh)
	}

	res, err := rotateSessionLua.Run(ctx, s.redis, []string{s.key(sid)}, hex.EncodeToString(presented[:]), nextHash).Slice()
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	if len(res) != 2 {
		return 0, "", fmt.Errorf("%w: unexpected script reply", errRedisUnavailable)
	}

	status, _ := res[0].(int64)
	switch status {
	case rotateStatusOK:
	case rotateStatusMismatch:
		return 0, "", errSessionMismatch
	default:
		return 0, "", errSessionNotFound
	}

	user, _ := res[1].(string)
	userID, err = strconv.Atoi(user)
	if err != nil {
		return 0, "", errSessionNotFound
	}
	return userID, next, nil
}

// RevokeAll deletes every session and returns how many existed.
func (s *sessionStore) RevokeAll(ctx context.Context) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.prefix+":session:"+id)
	}
	keys = append(keys, s.indexKey())
	n, err := s.redis.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	// The index key itself is counted when it existed.
	return int(n) - 1, nil
}
