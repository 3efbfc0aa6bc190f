package registry

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"QChat/logger"
)

// RedisRegistry stores one key per session in a shared redis database.
type RedisRegistry struct {
	rdb *redis.Client
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisRegistry(cfg RedisConfig) (*RedisRegistry, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisRegistry{rdb: rdb}, nil
}

func (r *RedisRegistry) Persist(ctx context.Context, sessionID, identity, serverID string) {
	if err := r.rdb.Set(ctx, connKey(sessionID, serverID), identity, 0).Err(); err != nil {
		logger.Errorf("error while persisting socket connection to redis: %v", err)
	}
}

func (r *RedisRegistry) Remove(ctx context.Context, sessionID, serverID string) {
	if err := r.rdb.Del(ctx, connKey(sessionID, serverID)).Err(); err != nil {
		logger.Errorf("error while removing socket connection from redis: %v", err)
	}
}

func (r *RedisRegistry) Resolve(ctx context.Context, sessionID, serverID string) string {
	identity, err := r.rdb.Get(ctx, connKey(sessionID, serverID)).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Errorf("error getting connection details from redis: %v", err)
		}
		return ""
	}
	return identity
}
