package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultSessionTTL = 24 * time.Hour

// RedisStore persists sessions in Redis with a sliding TTL.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisStore creates a Redis-backed session store. A non-positive ttl
// falls back to 24h.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("realty.internal.session"),
	}
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.get")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Put(ctx context.Context, id string, sess *Session) error {
	ctx, span := s.tracer.Start(ctx, "session.put")
	defer span.End()

	data, err := json.Marshal(sess)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(id), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist session: %w", err)
	}
	return nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}
