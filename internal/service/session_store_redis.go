package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"companion-llm/internal/domain"
)

type redisSessionClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisSessionStore espeja sesiones en Redis con TTL; los escritores
// concurrentes resuelven por last-writer-wins.
type RedisSessionStore struct {
	client redisSessionClient
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(id uuid.UUID) string { return "session:" + id.String() }

func (s *RedisSessionStore) Load(ctx context.Context, conversationID uuid.UUID) (domain.Session, bool, error) {
	raw, err := s.client.Get(ctx, sessionKey(conversationID)).Result()
	if err == redis.Nil {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, err
	}
	var session domain.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return domain.Session{}, false, err
	}
	return session, true, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, session domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(session.ConversationID), payload, s.ttl).Err()
}

func (s *RedisSessionStore) Delete(ctx context.Context, conversationID uuid.UUID) error {
	return s.client.Del(ctx, sessionKey(conversationID)).Err()
}

var _ SessionStore = (*RedisSessionStore)(nil)
