package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Append y recorte en un solo paso para que el tope M sea atomico.
// ARGV[1]=mensaje serializado, ARGV[2]=M, ARGV[3]=TTL en segundos.
const redisBufferAppendScript = `
redis.call("RPUSH", KEYS[1], ARGV[1])
redis.call("LTRIM", KEYS[1], -tonumber(ARGV[2]), -1)
redis.call("EXPIRE", KEYS[1], ARGV[3])
return redis.call("LLEN", KEYS[1])
`

type redisBufferClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisConversationBuffer implementa el buffer sobre listas de Redis con
// TTL por conversacion; apto para despliegues multi-replica.
type RedisConversationBuffer struct {
	client redisBufferClient
	size   int
	ttl    time.Duration
}

func NewRedisConversationBuffer(client *redis.Client, size int, ttl time.Duration) *RedisConversationBuffer {
	if size <= 0 {
		size = 10
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisConversationBuffer{client: client, size: size, ttl: ttl}
}

func bufferKey(id uuid.UUID) string  { return "buf:msgs:" + id.String() }
func summaryKey(id uuid.UUID) string { return "buf:sum:" + id.String() }

func (b *RedisConversationBuffer) Append(ctx context.Context, id uuid.UUID, msg BufferedMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	seconds := int(b.ttl.Seconds())
	return b.client.Eval(ctx, redisBufferAppendScript, []string{bufferKey(id)}, payload, b.size, seconds).Err()
}

func (b *RedisConversationBuffer) Get(ctx context.Context, id uuid.UUID) ([]BufferedMessage, error) {
	raw, err := b.client.LRange(ctx, bufferKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	messages := make([]BufferedMessage, 0, len(raw))
	for _, item := range raw {
		var msg BufferedMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (b *RedisConversationBuffer) SetSummary(ctx context.Context, id uuid.UUID, summary string) error {
	return b.client.Set(ctx, summaryKey(id), summary, b.ttl).Err()
}

func (b *RedisConversationBuffer) GetSummary(ctx context.Context, id uuid.UUID) (string, error) {
	val, err := b.client.Get(ctx, summaryKey(id)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (b *RedisConversationBuffer) Reset(ctx context.Context, id uuid.UUID) error {
	return b.client.Del(ctx, bufferKey(id)).Err()
}

// Cleanup es un no-op: el TTL por llave hace la expiracion del lado de Redis.
func (b *RedisConversationBuffer) Cleanup(context.Context, time.Duration) error {
	return nil
}

var _ ConversationBuffer = (*RedisConversationBuffer)(nil)
