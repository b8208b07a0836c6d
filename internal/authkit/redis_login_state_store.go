package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisLoginStateKeyPrefix = "tasktrack:login_state:"

// RedisLoginStateStore shares login state across service instances.
type RedisLoginStateStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisLoginStateStore wraps a go-redis client.
func NewRedisLoginStateStore(client redis.Cmdable, ttl time.Duration) (*RedisLoginStateStore, error) {
	if client == nil {
		return nil, errors.New("login_state.redis: client is required")
	}
	if ttl <= 0 {
		return nil, errors.New("login_state.redis: ttl must be greater than zero")
	}
	return &RedisLoginStateStore{client: client, ttl: ttl}, nil
}

// ConnectRedis parses a redis:// URL and verifies the server answers PING.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, parseErr := redis.ParseURL(strings.TrimSpace(redisURL))
	if parseErr != nil {
		return nil, fmt.Errorf("login_state.redis.parse_url: %w", parseErr)
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		_ = client.Close()
		return nil, fmt.Errorf("login_state.redis.ping: %w", pingErr)
	}
	return client, nil
}

// Issue stores the verifier under a fresh state key that expires with the TTL.
func (store *RedisLoginStateStore) Issue(ctx context.Context, verifier string) (string, error) {
	state, err := randomLoginState()
	if err != nil {
		return "", err
	}
	if setErr := store.client.Set(ctx, redisLoginStateKey(state), verifier, store.ttl).Err(); setErr != nil {
		return "", fmt.Errorf("login_state.redis.issue: %w", setErr)
	}
	return state, nil
}

// Consume atomically reads and deletes the state key. Redis expiry makes an
// expired state indistinguishable from an unknown one.
func (store *RedisLoginStateStore) Consume(ctx context.Context, state string) (string, error) {
	if strings.TrimSpace(state) == "" {
		return "", ErrLoginStateNotFound
	}
	verifier, getErr := store.client.GetDel(ctx, redisLoginStateKey(state)).Result()
	if getErr != nil {
		if errors.Is(getErr, redis.Nil) {
			return "", ErrLoginStateNotFound
		}
		return "", fmt.Errorf("login_state.redis.consume: %w", getErr)
	}
	return verifier, nil
}

func redisLoginStateKey(state string) string {
	return redisLoginStateKeyPrefix + state
}
