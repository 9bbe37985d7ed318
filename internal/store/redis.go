package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/agora-protocol/relay/internal/models"
)

// mailboxIndexKey is a set holding the keys of every non-empty mailbox.
const mailboxIndexKey = "mailboxes"

// purgeScript trims one mailbox and unindexes it once Redis has deleted the
// emptied sorted set. It runs atomically with respect to Append.
var purgeScript = redis.NewScript(`
local n = redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('EXISTS', KEYS[1]) == 0 then
	redis.call('SREM', KEYS[2], KEYS[1])
end
return n
`)

// RedisStore keeps mailboxes in Redis sorted sets scored by timestamp.
// Its client is shared with the rate limiter.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// mailboxKey returns the key for a recipient's envelope sorted set.
func mailboxKey(recipient string) string {
	return fmt.Sprintf("mailbox:%s", recipient)
}

// Append stores an envelope in the recipient's inbox.
func (s *RedisStore) Append(ctx context.Context, env *models.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	key := mailboxKey(env.To)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(env.Timestamp),
			Member: string(data),
		})
		pipe.SAdd(ctx, mailboxIndexKey, key)
		return nil
	})
	return err
}

// Query retrieves envelopes newer than since, oldest first.
func (s *RedisStore) Query(ctx context.Context, recipient string, since int64, limit int) ([]models.Envelope, error) {
	results, err := s.client.ZRangeByScore(ctx, mailboxKey(recipient), &redis.ZRangeBy{
		Min:    fmt.Sprintf("(%d", since), // exclusive
		Max:    "+inf",
		Offset: 0,
		Count:  int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	envelopes := make([]models.Envelope, 0, len(results))
	for _, data := range results {
		var env models.Envelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		envelopes = append(envelopes, env)
	}

	return envelopes, nil
}

// LastTimestamp returns the score of the newest envelope in a mailbox.
func (s *RedisStore) LastTimestamp(ctx context.Context, recipient string) (int64, error) {
	results, err := s.client.ZRevRangeWithScores(ctx, mailboxKey(recipient), 0, 0).Result()
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	return int64(results[0].Score), nil
}

// Purge removes envelopes older than before from every indexed mailbox and
// drops emptied mailboxes from the index.
func (s *RedisStore) Purge(ctx context.Context, before int64) (int64, error) {
	keys, err := s.client.SMembers(ctx, mailboxIndexKey).Result()
	if err != nil {
		return 0, err
	}

	maxScore := "(" + strconv.FormatInt(before, 10)

	var removed int64
	for _, key := range keys {
		n, err := purgeScript.Run(ctx, s.client, []string{key, mailboxIndexKey}, maxScore).Int64()
		if err != nil {
			return removed, err
		}
		removed += n
	}

	return removed, nil
}
