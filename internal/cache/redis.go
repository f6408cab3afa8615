package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix はこのサービスが管理するRedisキーのプレフィックス。
// Clearはこのプレフィックス配下のキーだけを削除する。
const keyPrefix = "dealscope:analytics:"

// RedisCache はCacheのRedis実装。
// 複数インスタンスやプロセス再起動をまたいでキャッシュを共有する場合に使用する。
type RedisCache struct {
	client *redis.Client
}

// RedisConfig はRedis接続の設定を保持する。
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisCache はRedis接続を確立してRedisCacheを生成する。
// 接続確認（PING）に失敗した場合はエラーを返す。
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get はキーに対応する値を取得する。見つからない場合はErrCacheMissを返す。
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return value, nil
}

// Set は値をTTL付きで保存する。
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete はキーに対応する値を削除する。
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Clear はプレフィックス配下の全エントリを削除する。
// SCANでキーを列挙するため、他用途のキーには影響しない。
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis clear failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	return nil
}

// Close はRedis接続を閉じる。
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// compile-time interface check
var _ Cache = (*RedisCache)(nil)
