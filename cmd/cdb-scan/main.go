package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"cdb-features/internal/capture"
	"cdb-features/internal/cdb/source"
	"cdb-features/internal/cdb/tile"
	"cdb-features/internal/config"
	"cdb-features/internal/feature"
	"cdb-features/internal/logger"
	"cdb-features/internal/session"
	"cdb-features/internal/utils"
)

// 文档注释：离线扫描 CDB 要素瓦片
// 背景：在一个会话内按 LOD 由粗到细遍历 bbox，统计每块瓦片的要素数并可选落库采集。
// 约束：CDB_SCAN_BBOX 为 "west,south,east,north"；CDB_SCAN_LODS 为 "min,max"，缺省取剖面 LOD 区间。
func main() {
	config.Load()
	l := logger.Setup()
	opts := config.SourceFromEnv()
	src, err := source.Open(opts)
	if err != nil {
		l.Error("source_open_error", "err", err)
		os.Exit(1)
	}
	if st := src.Status(); st != nil {
		l.Error("source_unavailable", "err", st)
		os.Exit(1)
	}
	bbox := src.Profile().Extent
	if s := os.Getenv("CDB_SCAN_BBOX"); s != "" {
		var w, so, e, n float64
		if _, err := fmt.Sscanf(s, "%f,%f,%f,%f", &w, &so, &e, &n); err != nil {
			l.Error("scan_bbox_invalid", "bbox", s, "err", err)
			os.Exit(1)
		}
		bbox = tile.Extent{North: n, South: so, East: e, West: w}
	}
	minLOD, maxLOD := src.Profile().MinLOD, src.Profile().MaxLOD
	if s := os.Getenv("CDB_SCAN_LODS"); s != "" {
		if _, err := fmt.Sscanf(s, "%d,%d", &minLOD, &maxLOD); err != nil {
			l.Error("scan_lods_invalid", "lods", s, "err", err)
			os.Exit(1)
		}
	}
	if minLOD < 0 {
		minLOD = 0
	}

	if target := config.CapturePath(os.Getenv("CDB_CAPTURE"), opts.CacheDir); target != "" {
		sink, err := capture.Open(target, utils.OpenPostgresFromEnv)
		if err != nil {
			l.Error("capture_open_error", "target", target, "err", err)
			os.Exit(1)
		}
		defer sink.Close()
		src.WithSink(sink)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	sess := session.New(nil, nil)
	enc := json.NewEncoder(os.Stdout)
	total := 0
	for lod := minLOD; lod <= maxLOD; lod++ {
		l.Info("scan_lod_begin", "lod", lod, "bbox", bbox.String())
		err := src.Scan(ctx, sess, bbox, lod, func(st source.TileStat, _ *feature.Result) {
			total += st.Features
			_ = enc.Encode(st)
		})
		if err != nil {
			l.Error("scan_error", "lod", lod, "err", err)
			break
		}
	}
	stats := sess.Stats(sess.Blacklist.Len(ctx))
	l.Info("scan_done", "features", total, "instances", stats.Instances, "orphans", stats.Orphans,
		"blacklisted", stats.Blacklisted, "next_fid", stats.NextFeatureID)
}
