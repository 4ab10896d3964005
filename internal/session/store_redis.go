package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
)

// RedisStore はセッションを Redis に保存します。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Get はセッションを取得します。
func (s *RedisStore) Get(ctx context.Context, key string) (*Session, error) {
	if key == "" {
		return nil, fmt.Errorf("session: key is required")
	}
	data, err := s.rdb.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get: %w", ErrUnavailable, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &sess, nil
}

// Save はセッションを TTL 付きで保存します。
func (s *RedisStore) Save(ctx context.Context, key string, sess *Session, ttl time.Duration) error {
	if sess == nil {
		return fmt.Errorf("session: session is nil")
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, redisKey(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %w", ErrUnavailable, err)
	}
	return nil
}

// Delete はセッションを削除します。存在しない場合もエラーにしません。
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: del: %w", ErrUnavailable, err)
	}
	return nil
}

// Ping は Redis への接続を確認します。
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}
	return nil
}

func redisKey(key string) string {
	return sessionKeyPrefix + key
}
