package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// CatalogListKey 缓存 /api/music 响应体的键前缀，完整的键为 "<prefix>:<catalog version>"
const CatalogListKey = "musicbox:catalog:list"

// listKey 每个目录版本一个键；曲目变化后旧版本的键不会再被读取，等待 TTL 过期
func listKey(version uint64) string {
	return fmt.Sprintf("%s:%d", CatalogListKey, version)
}

// CatalogCache 缓存序列化后的曲目列表。client 为 nil 时所有操作都是空操作，
// Get 总是未命中。
type CatalogCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCatalogCache 创建曲目列表缓存
func NewCatalogCache(client *redis.Client, ttl time.Duration) *CatalogCache {
	return &CatalogCache{client: client, ttl: ttl}
}

// Enabled 是否连接了 Redis
func (c *CatalogCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Get 返回目录版本 version 的缓存列表；未命中时返回 (nil, false, nil)
func (c *CatalogCache) Get(ctx context.Context, version uint64) ([]byte, bool, error) {
	if !c.Enabled() {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, listKey(version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get catalog list: %w", err)
	}
	return data, true, nil
}

// Set 缓存目录版本 version 的列表。body 必须是该版本的快照
func (c *CatalogCache) Set(ctx context.Context, version uint64, body []byte) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.client.Set(ctx, listKey(version), body, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set catalog list: %w", err)
	}
	return nil
}

// Invalidate 删除所有版本的缓存列表。版本号只在进程内有效，启动时需要调用
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}

	var keys []string
	iter := c.client.Scan(ctx, 0, CatalogListKey+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan catalog list keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate catalog list: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接
func (c *CatalogCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}
