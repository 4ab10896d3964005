package main

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/memberauth/internal/config"
	"github.com/yourusername/memberauth/internal/session"
)

// openSessionStore は SESSION_STORE に応じたセッションストアを返します。
// Redis の場合は起動時に疎通を確認し、失敗したらエラーを返します。
func openSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	switch cfg.SessionStore {
	case config.SessionStoreMemory:
		return session.NewMemoryStore(), func() {}, nil
	case config.SessionStoreRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient := redis.NewClient(opt)
		store := session.NewRedisStore(redisClient)
		if err := store.Ping(ctx); err != nil {
			_ = redisClient.Close()
			return nil, nil, err
		}
		return store, func() { _ = redisClient.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
}
