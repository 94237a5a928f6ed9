// 包 blacklist：资源黑名单，记录解析失败或无可用要素的瓦片基名
// 只增不减，生命周期与会话一致；Redis 实现可在多个进程间共享
package blacklist

import (
	"context"
	"sync"

	"cdb-features/internal/logger"
	"cdb-features/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// Cache：黑名单接口
type Cache interface {
	IsBlacklisted(ctx context.Context, name string) bool
	Blacklist(ctx context.Context, name string)
	Len(ctx context.Context) int
}

// FeatureCache：按要素来源屏蔽单个要素
// 来源为 "<矢量文件基名>#<记录序号>"，重复请求同一瓦片时保持不变；要素 ID 每次请求都会重新分配，不能作为键
type FeatureCache interface {
	IsFeatureBlacklisted(ctx context.Context, origin string) bool
	BlacklistFeature(ctx context.Context, origin string)
}

// Memory：进程内黑名单，另维护要素黑名单
type Memory struct {
	mu       sync.RWMutex
	names    map[string]struct{}
	features map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{names: make(map[string]struct{}), features: make(map[string]struct{})}
}

func (m *Memory) IsBlacklisted(_ context.Context, name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.names[name]
	return ok
}

func (m *Memory) Blacklist(_ context.Context, name string) {
	m.mu.Lock()
	_, had := m.names[name]
	m.names[name] = struct{}{}
	m.mu.Unlock()
	if !had {
		metrics.BlacklistAddsTotal.Inc()
	}
}

func (m *Memory) Len(context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.names)
}

func (m *Memory) IsFeatureBlacklisted(_ context.Context, origin string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.features[origin]
	return ok
}

func (m *Memory) BlacklistFeature(_ context.Context, origin string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features[origin] = struct{}{}
}

// FeatureLen：被屏蔽的要素数
func (m *Memory) FeatureLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.features)
}

// Redis：基于 Redis SET 的共享黑名单
// 约束：Redis 不可用时读返回 false、写仅记日志，不影响瓦片请求
type Redis struct {
	rdb *redis.Client
	key string
}

func NewRedis(rdb *redis.Client, key string) *Redis {
	if key == "" {
		key = "cdb:blacklist"
	}
	return &Redis{rdb: rdb, key: key}
}

func (r *Redis) IsBlacklisted(ctx context.Context, name string) bool {
	ok, err := r.rdb.SIsMember(ctx, r.key, name).Result()
	if err != nil {
		logger.L().Warn("blacklist_redis_read_fail", "key", r.key, "name", name, "err", err)
		return false
	}
	return ok
}

func (r *Redis) Blacklist(ctx context.Context, name string) {
	n, err := r.rdb.SAdd(ctx, r.key, name).Result()
	if err != nil {
		logger.L().Warn("blacklist_redis_write_fail", "key", r.key, "name", name, "err", err)
		return
	}
	if n > 0 {
		metrics.BlacklistAddsTotal.Inc()
	}
}

func (r *Redis) Len(ctx context.Context) int {
	n, err := r.rdb.SCard(ctx, r.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// FeatureKey：要素黑名单使用的 Redis 键
func (r *Redis) FeatureKey() string { return r.key + ":features" }

func (r *Redis) IsFeatureBlacklisted(ctx context.Context, origin string) bool {
	ok, err := r.rdb.SIsMember(ctx, r.FeatureKey(), origin).Result()
	if err != nil {
		logger.L().Warn("blacklist_redis_read_fail", "key", r.FeatureKey(), "origin", origin, "err", err)
		return false
	}
	return ok
}

func (r *Redis) BlacklistFeature(ctx context.Context, origin string) {
	if err := r.rdb.SAdd(ctx, r.FeatureKey(), origin).Err(); err != nil {
		logger.L().Warn("blacklist_redis_write_fail", "key", r.FeatureKey(), "origin", origin, "err", err)
	}
}

// Chain：先查内存再查 Redis；写入两者
// 背景：Redis 命中后回填内存，后续同名查询不再访问网络
type Chain struct {
	mem    *Memory
	shared Cache
}

func NewChain(mem *Memory, shared Cache) *Chain {
	return &Chain{mem: mem, shared: shared}
}

func (c *Chain) IsBlacklisted(ctx context.Context, name string) bool {
	if c.mem.IsBlacklisted(ctx, name) {
		return true
	}
	if c.shared != nil && c.shared.IsBlacklisted(ctx, name) {
		c.mem.mu.Lock()
		c.mem.names[name] = struct{}{}
		c.mem.mu.Unlock()
		return true
	}
	return false
}

func (c *Chain) Blacklist(ctx context.Context, name string) {
	c.mem.Blacklist(ctx, name)
	if c.shared != nil {
		c.shared.Blacklist(ctx, name)
	}
}

func (c *Chain) Len(ctx context.Context) int {
	if c.shared != nil {
		if n := c.shared.Len(ctx); n > c.mem.Len(ctx) {
			return n
		}
	}
	return c.mem.Len(ctx)
}

func (c *Chain) IsFeatureBlacklisted(ctx context.Context, origin string) bool {
	if c.mem.IsFeatureBlacklisted(ctx, origin) {
		return true
	}
	if fc, ok := c.shared.(FeatureCache); ok && fc.IsFeatureBlacklisted(ctx, origin) {
		c.mem.BlacklistFeature(ctx, origin)
		return true
	}
	return false
}

func (c *Chain) BlacklistFeature(ctx context.Context, origin string) {
	c.mem.BlacklistFeature(ctx, origin)
	if fc, ok := c.shared.(FeatureCache); ok {
		fc.BlacklistFeature(ctx, origin)
	}
}
