// 程序入口：读取配置、初始化依赖并启动要素服务；API 注册在 internal/api
package main

import (
	"context"
	"net/http"
	"os"

	"cdb-features/internal/api"
	"cdb-features/internal/blacklist"
	"cdb-features/internal/capture"
	"cdb-features/internal/config"
	"cdb-features/internal/feature"
	"cdb-features/internal/logger"
	"cdb-features/internal/metrics"
	"cdb-features/internal/middleware"
	"cdb-features/internal/plugins"
	"cdb-features/internal/replace"
	"cdb-features/internal/session"
	"cdb-features/internal/utils"
)

func main() {
	config.Load()
	l := logger.Setup()
	l.Debug("log_init_ok")
	srv := config.ServerFromEnv()
	opts := config.SourceFromEnv()
	l.Debug("config_api_base", "base", srv.APIBase)

	// 文档注释：驱动注册
	// 背景：数据源通过驱动扩展名查找；心跳在后台检查根目录可用性。
	pm := plugins.NewManager()
	if err := pm.Register(plugins.NewCDBDriver(opts.RootDir)); err != nil {
		l.Error("plugin_register_error", "err", err)
		os.Exit(1)
	}
	l.Info("plugin_register", "name", "cdb", "ext", plugins.CDBExtension)
	pm.Start(context.Background())

	drv, _ := pm.Lookup(plugins.CDBExtension)
	src, err := drv.Open(opts)
	if err != nil {
		l.Error("source_open_error", "err", err)
		os.Exit(1)
	}
	if st := src.Status(); st != nil {
		l.Warn("source_degraded", "err", st)
	}

	// 黑名单：配置 Redis 时与其它实例共享瓦片黑名单
	var bl blacklist.Cache = blacklist.NewMemory()
	if rc := utils.OpenRedisFromEnv(); rc == nil {
		l.Info("redis_disabled")
	} else {
		if err := rc.Ping(context.Background()).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
		bl = blacklist.NewChain(blacklist.NewMemory(), blacklist.NewRedis(rc, utils.RedisBlacklistKey()))
	}

	if target := config.CapturePath(srv.Capture, opts.CacheDir); target != "" {
		sink, err := capture.Open(target, utils.OpenPostgresFromEnv)
		if err != nil {
			l.Error("capture_open_error", "target", target, "err", err)
		} else {
			defer sink.Close()
			src.WithSink(sink)
			l.Info("capture_enabled", "sink", sink.Name())
		}
	}

	sessions := session.NewHolder(session.New(bl, nil))
	l.Info("session_start", "id", sessions.Current().ID.String())

	apiMux := api.BuildRoutes(api.Deps{
		Sessions:   sessions,
		Source:     src,
		Queue:      replace.NewQueue(),
		Retired:    replace.NewRetiredMap(),
		Draw:       feature.NewDrawIndex(),
		Drivers:    pm,
		AdminToken: srv.AdminToken,
	})
	mux := http.NewServeMux()
	mux.Handle(srv.APIBase+"/", http.StripPrefix(srv.APIBase, apiMux))
	mux.Handle(srv.APIBase+"/metrics", metrics.Handler())

	handler := logger.AccessMiddleware(l, srv.SlowRequest)(mux)
	handler = middleware.Wrap(handler)
	handler = middleware.AllowListFromEnv().Wrap(handler)
	s := &http.Server{Addr: srv.Addr, Handler: handler}
	tc := utils.TLSFromEnv()
	if tc.Enabled {
		if err := utils.EnsureSelfSignedCert(tc.CertPath, tc.KeyPath, "cdb-features.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", srv.Addr, "cert", tc.CertPath)
		if err := s.ListenAndServeTLS(tc.CertPath, tc.KeyPath); err != nil {
			l.Error("server_error", "err", err)
		}
		return
	}
	l.Info("listening", "addr", srv.Addr)
	if err := s.ListenAndServe(); err != nil {
		l.Error("server_error", "err", err)
	}
}
