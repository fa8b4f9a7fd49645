package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Each identity's set is a sorted set scored by expiry (unix ms).
const redisKeyPrefix = "accessguard:refresh:"

// rotateScript removes ARGV[1] and adds ARGV[2] only when ARGV[1] is present and unexpired.
var rotateScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score or tonumber(score) <= tonumber(ARGV[4]) then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[4])
redis.call('PEXPIREAT', KEYS[1], ARGV[3])
return 1
`)

// RedisRepository keeps refresh-token sets in Redis so several server instances share them.
type RedisRepository struct {
	client redis.UniversalClient
}

// NewRedisRepository returns a repository backed by client.
func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{client: client}
}

func key(userID string) string { return redisKeyPrefix + userID }

func (r *RedisRepository) Add(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	k := key(userID)
	now := time.Now().UnixMilli()
	// Every token shares the refresh TTL, so the newest expiry is also the latest one.
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(now, 10))
		p.ZAdd(ctx, k, redis.Z{Score: float64(expiresAt.UnixMilli()), Member: hash})
		p.PExpireAt(ctx, k, expiresAt)
		return nil
	})
	return err
}

func (r *RedisRepository) Rotate(ctx context.Context, userID, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	n, err := rotateScript.Run(ctx, r.client, []string{key(userID)},
		oldHash, newHash, expiresAt.UnixMilli(), time.Now().UnixMilli()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisRepository) Remove(ctx context.Context, userID, hash string) (bool, error) {
	n, err := r.client.ZRem(ctx, key(userID), hash).Result()
	return n > 0, err
}

func (r *RedisRepository) Clear(ctx context.Context, userID string) (int64, error) {
	k := key(userID)
	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		card = p.ZCard(ctx, k)
		p.Del(ctx, k)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return card.Val(), nil
}

func (r *RedisRepository) Contains(ctx context.Context, userID, hash string) (bool, error) {
	score, err := r.client.ZScore(ctx, key(userID), hash).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return int64(score) > time.Now().UnixMilli(), nil
}
