package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/your-org/facebot/internal/config"
)

// RedisStore keeps one JSON value per chat under prefix+chatID. Every save
// refreshes the TTL, so an abandoned conversation falls back to Idle.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(chatID string) string { return r.prefix + chatID }

func (r *RedisStore) Load(ctx context.Context, chatID string) (State, error) {
	raw, err := r.client.Get(ctx, r.key(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load session %s: %w", chatID, err)
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("decode session %s: %w", chatID, err)
	}
	return s, nil
}

func (r *RedisStore) Save(ctx context.Context, chatID string, s State) error {
	if s.Idle() {
		if err := r.client.Del(ctx, r.key(chatID)).Err(); err != nil {
			return fmt.Errorf("clear session %s: %w", chatID, err)
		}
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", chatID, err)
	}
	if err := r.client.Set(ctx, r.key(chatID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", chatID, err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// New builds the store selected by session.backend. The redis client is
// only used by the redis backend and may be nil otherwise.
func New(cfg config.SessionConfig, client *redis.Client) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "redis", "":
		if client == nil {
			return nil, fmt.Errorf("session backend redis needs a redis client")
		}
		return NewRedisStore(client, cfg.Prefix, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported session backend %q", cfg.Backend)
	}
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
