package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridian-trading/authcore/internal/session/domain"
)

const (
	recordKeyPrefix = "auth:session:"
	indexKeyPrefix  = "auth:sessions:"
)

// rotateScript is the server-evaluated compare-and-swap for refresh rotation.
// It succeeds only if the record's stored refresh jti equals the presented
// one, swaps both jti/expiry pairs, extends the TTL, and returns the previous
// access jti/expiry. KEYS[2] is the owner's index; its TTL is extended with
// the record's so a refreshed session never outlives its index entry.
// Client-side read-then-write must not be used here.
var rotateScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "refresh_jti")
if not cur or cur ~= ARGV[1] then
  return {0}
end
local prev = redis.call("HMGET", KEYS[1], "access_jti", "access_exp")
redis.call("HSET", KEYS[1],
  "access_jti", ARGV[2], "access_exp", ARGV[3],
  "refresh_jti", ARGV[4], "refresh_exp", ARGV[5])
redis.call("EXPIRE", KEYS[1], ARGV[6])
redis.call("EXPIRE", KEYS[2], ARGV[6])
return {1, prev[1], prev[2]}
`)

// RedisRepository implements Repository on the shared redis store. Records are
// hashes with a TTL equal to the refresh lifetime; the per-user index is a
// sorted set scored by creation time.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository returns a session repository backed by the given client.
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func recordKey(sessionID string) string { return recordKeyPrefix + sessionID }
func indexKey(userID string) string     { return indexKeyPrefix + userID }

// Create writes the record hash with ttl and appends the id to the owner's
// index in one transaction.
func (r *RedisRepository) Create(ctx context.Context, s *domain.Session, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, recordKey(s.ID), map[string]interface{}{
		"user_id":     s.UserID,
		"ip":          s.IP,
		"ua_hash":     s.UAHash,
		"access_jti":  s.AccessJTI,
		"access_exp":  s.AccessExpiresAt.Unix(),
		"refresh_jti": s.RefreshJTI,
		"refresh_exp": s.RefreshExpiresAt.Unix(),
		"created_at":  s.CreatedAt.Unix(),
	})
	pipe.Expire(ctx, recordKey(s.ID), ttl)
	pipe.ZAdd(ctx, indexKey(s.UserID), redis.Z{
		Score:  float64(s.CreatedAt.UnixMilli()),
		Member: s.ID,
	})
	pipe.Expire(ctx, indexKey(s.UserID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Get returns the record, or nil if the key is absent (deleted or expired).
func (r *RedisRepository) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	fields, err := r.client.HGetAll(ctx, recordKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	s := &domain.Session{
		ID:               sessionID,
		UserID:           fields["user_id"],
		IP:               fields["ip"],
		UAHash:           fields["ua_hash"],
		AccessJTI:        fields["access_jti"],
		RefreshJTI:       fields["refresh_jti"],
		AccessExpiresAt:  unixField(fields["access_exp"]),
		RefreshExpiresAt: unixField(fields["refresh_exp"]),
		CreatedAt:        unixField(fields["created_at"]),
	}
	return s, nil
}

// Delete removes the record and its index entry.
func (r *RedisRepository) Delete(ctx context.Context, userID, sessionID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, recordKey(sessionID))
	pipe.ZRem(ctx, indexKey(userID), sessionID)
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveFromIndex drops a stale index entry without touching the record.
func (r *RedisRepository) RemoveFromIndex(ctx context.Context, userID, sessionID string) error {
	return r.client.ZRem(ctx, indexKey(userID), sessionID).Err()
}

// SessionIDs returns the user's session ids ordered oldest first.
func (r *RedisRepository) SessionIDs(ctx context.Context, userID string) ([]string, error) {
	return r.client.ZRange(ctx, indexKey(userID), 0, -1).Result()
}

// RotateRefresh runs the compare-and-swap script. ErrConflict when the
// presented jti is no longer current or the record is gone.
func (r *RedisRepository) RotateRefresh(ctx context.Context, sessionID, presentedJTI string, next RefreshRotation) (*RotationResult, error) {
	ttl := int64(next.TTL / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	userID := domain.UserIDFromSessionID(sessionID)
	raw, err := rotateScript.Run(ctx, r.client, []string{recordKey(sessionID), indexKey(userID)},
		presentedJTI,
		next.AccessJTI, next.AccessExpiresAt.Unix(),
		next.RefreshJTI, next.RefreshExpiresAt.Unix(),
		ttl,
	).Result()
	if err != nil {
		return nil, err
	}
	reply, ok := raw.([]interface{})
	if !ok || len(reply) == 0 {
		return nil, ErrConflict
	}
	status, _ := reply[0].(int64)
	if status != 1 {
		return nil, ErrConflict
	}
	result := &RotationResult{}
	if len(reply) > 1 {
		if jti, ok := reply[1].(string); ok {
			result.PrevAccessJTI = jti
		}
	}
	if len(reply) > 2 {
		if expStr, ok := reply[2].(string); ok {
			if exp, err := strconv.ParseInt(expStr, 10, 64); err == nil {
				result.PrevAccessExpiresAt = time.Unix(exp, 0).UTC()
			}
		}
	}
	return result, nil
}

func unixField(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
