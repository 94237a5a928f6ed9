// 包 config：从环境变量构建数据源与服务配置
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cdb-features/internal/cdb/source"
	"cdb-features/internal/logger"

	"github.com/joho/godotenv"
)

// Load：依次加载 .env 与 data/env/.env；已存在的环境变量不会被覆盖
func Load() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.L().Warn("config_bool_invalid", "key", key, "value", v)
		return def
	}
	return b
}

func envInt(key string) *int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.L().Warn("config_int_invalid", "key", key, "value", v)
		return nil
	}
	return &n
}

// SourceFromEnv：CDB_* 环境变量到数据源选项
func SourceFromEnv() source.Options {
	o := source.DefaultOptions()
	o.RootDir = os.Getenv("CDB_ROOT_DIR")
	o.Inflated = envBool("CDB_INFLATED", false)
	o.GeoTypical = envBool("CDB_GEOTYPICAL", false)
	o.GSUsesGTTex = envBool("CDB_GS_USES_GT_TEX", false)
	o.NoSecondRef = envBool("CDB_NO_SECOND_REF", true)
	o.EditSupport = envBool("CDB_EDIT_SUPPORT", false)
	o.GTLOD0FullStack = envBool("CDB_GT_LOD0_FULLSTACK", false)
	o.GSLOD0FullStack = envBool("CDB_GS_LOD0_FULLSTACK", false)
	o.Verbose = envBool("CDB_VERBOSE", false)
	o.AbsZInM = envBool("CDB_ABS_Z_IN_M", false)
	o.Limits = os.Getenv("CDB_LIMITS")
	o.MinLOD = envInt("CDB_MIN_LOD")
	o.MaxLOD = envInt("CDB_MAX_LOD")
	o.CacheDir = os.Getenv("CDB_CACHE_DIR")
	return o
}

// Server：HTTP 服务配置
type Server struct {
	Addr       string
	APIBase    string
	AdminToken string
	// Capture：CDB_CAPTURE，取值 sqlite[:path] 或 postgres
	Capture     string
	SlowRequest time.Duration
}

func ServerFromEnv() Server {
	s := Server{
		Addr:       os.Getenv("ADDR"),
		APIBase:    os.Getenv("API_BASE"),
		AdminToken: os.Getenv("ADMIN_TOKEN"),
		Capture:    os.Getenv("CDB_CAPTURE"),
	}
	if s.Addr == "" {
		s.Addr = ":8080"
	}
	if s.APIBase == "" {
		s.APIBase = "/api"
	}
	s.SlowRequest = 500 * time.Millisecond
	if v := envInt("SLOW_REQUEST_MS"); v != nil {
		s.SlowRequest = time.Duration(*v) * time.Millisecond
	}
	return s
}

// CapturePath：sqlite 采集文件未指定路径时落在缓存目录
func CapturePath(capture, cacheDir string) string {
	if capture != "sqlite" || cacheDir == "" {
		return capture
	}
	return "sqlite:" + filepath.Join(cacheDir, "GeoSpecificModelCapture.gpkg")
}
