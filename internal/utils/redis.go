// 包 utils：外部连接工具，统一环境变量读取
package utils

import (
	"os"
	"strconv"

	"cdb-features/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：使用地址与密码打开 Redis 客户端；地址为空返回 nil
func OpenRedis(addr, pass string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass})
}

// OpenRedisFromEnv：从环境变量打开共享黑名单使用的 Redis 客户端
// 约束：未配置 REDIS_HOST 时返回 nil（黑名单仅在进程内）；REDIS_DB 解析失败回退到 0
func OpenRedisFromEnv() *redis.Client {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return nil
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	addr := host + ":" + port
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			db = n
		}
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASS"), DB: db})
}

// RedisBlacklistKey：共享黑名单的集合键，默认 cdb:blacklist
func RedisBlacklistKey() string {
	if k := os.Getenv("REDIS_BLACKLIST_KEY"); k != "" {
		return k
	}
	return "cdb:blacklist"
}
