// 包 source：CDB 模型要素数据源
// 按请求范围定位瓦片，逐个 selection 读取矢量记录，经实例引用解析后输出带 osge_* 属性的要素。
// 解析状态由调用方传入的会话持有，跨瓦片请求共享。
package source

import (
	"context"
	"fmt"
	"os"
	"time"

	"cdb-features/internal/capture"
	"cdb-features/internal/cdb/archive"
	"cdb-features/internal/cdb/tile"
	"cdb-features/internal/cdb/vector"
	"cdb-features/internal/feature"
	"cdb-features/internal/logger"
	"cdb-features/internal/metrics"
	"cdb-features/internal/session"
)

// Source：CDB 要素数据源
type Source struct {
	opts     Options
	profile  Profile
	locator  *tile.Locator
	dataset  vector.Dataset
	archives *archive.Lister
	sink     capture.Sink
	// status：根目录问题（非致命）
	status error
}

// Open：校验选项并建立剖面
// 约束：剖面无效返回 ErrResourceUnavailable；根目录缺失只记警告，Status 返回 ErrConfiguration
func Open(o Options) (*Source, error) {
	o = o.normalize()
	p, err := BuildProfile(o)
	if err != nil {
		return nil, err
	}
	s := &Source{
		opts:     o,
		profile:  p,
		locator:  &tile.Locator{Root: o.RootDir, Kind: o.kind(), FullStackLOD0: o.fullStack()},
		dataset:  vector.Shapefile{},
		archives: archive.NewLister(512, 10*time.Minute),
	}
	switch {
	case o.RootDir == "":
		s.status = fmt.Errorf("%w: root directory not set", ErrConfiguration)
	default:
		if st, err := os.Stat(o.RootDir); err != nil || !st.IsDir() {
			s.status = fmt.Errorf("%w: root directory %s not accessible", ErrConfiguration, o.RootDir)
		}
	}
	if s.status != nil {
		logger.L().Warn("cdb_root_unavailable", "root", o.RootDir, "err", s.status)
	}
	logger.L().Info("cdb_source_open", "root", o.RootDir, "kind", o.kind().String(), "inflated", o.Inflated,
		"min_lod", p.MinLOD, "max_lod", p.MaxLOD, "no_second_ref", o.NoSecondRef)
	return s, nil
}

// WithDataset：替换矢量读取器
func (s *Source) WithDataset(d vector.Dataset) *Source {
	s.dataset = d
	return s
}

// WithSink：设置要素采集输出；仅地理专属要素会被采集
func (s *Source) WithSink(k capture.Sink) *Source {
	s.sink = k
	return s
}

func (s *Source) Options() Options { return s.opts }

func (s *Source) Profile() Profile { return s.profile }

// Status：非致命配置问题
func (s *Source) Status() error { return s.status }

// Features：读取请求范围内的要素
// 返回的 Result 不为 nil；范围无法定位、瓦片缺失或已在黑名单时返回空结果并附 ErrNotFound，
// 根目录不可用时附 ErrConfiguration。单条记录失败只记日志，不影响整块瓦片。
func (s *Source) Features(ctx context.Context, sess *session.Session, e tile.Extent) (*feature.Result, error) {
	res := feature.NewResult()
	if s.status != nil {
		return res, s.status
	}
	kind := s.opts.kind().String()
	start := time.Now()
	metrics.TileRequestsTotal.WithLabelValues(kind).Inc()
	defer func() {
		metrics.TileDurationMs.WithLabelValues(kind).Observe(float64(time.Since(start).Milliseconds()))
	}()

	if !e.Bound().Intersects(s.profile.Extent.Bound()) {
		return res, fmt.Errorf("%w: extent %s outside profile", ErrNotFound, e)
	}
	t, ok := s.locator.Locate(e)
	if !ok {
		return res, fmt.Errorf("%w: extent %s does not map to a tile", ErrNotFound, e)
	}
	res.LOD = t.LOD()
	if t.Subtile {
		logger.Verbose(s.opts.Verbose, "cdb_subtile", "request", e.String(), "actual", t.Actual.String())
	}
	if t.Count() == 0 {
		return res, fmt.Errorf("%w: no candidate files", ErrNotFound)
	}
	base := t.File(0).Base
	res.Tile = base
	if sess.Blacklist.IsBlacklisted(ctx, base) {
		metrics.BlacklistHitsTotal.Inc()
		logger.Verbose(s.opts.Verbose, "cdb_tile_blacklisted", "tile", base)
		return res, fmt.Errorf("%w: tile %s blacklisted", ErrNotFound, base)
	}

	run := &extraction{ctx: ctx, src: s, sess: sess, tile: t, res: res}
	loaded := false
	for _, f := range t.Files() {
		if _, err := os.Stat(f.Path); err != nil {
			continue
		}
		res.FilesChecked++
		logger.Verbose(s.opts.Verbose, "cdb_tile_load", "tile", f.Base, "kind", kind, "lod", f.Address.LOD)
		before := res.Len()
		if err := run.file(f); err != nil {
			logger.L().Warn("cdb_tile_file_fail", "tile", f.Base, "err", err)
			sess.Blacklist.Blacklist(ctx, base)
			continue
		}
		loaded = true
		logger.Verbose(s.opts.Verbose, "cdb_tile_features", "tile", f.Base, "count", res.Len()-before)
	}
	if !loaded {
		sess.Blacklist.Blacklist(ctx, base)
		if res.FilesChecked == 0 {
			metrics.TilesMissingTotal.Inc()
		}
		run.flush(ctx)
		return res, fmt.Errorf("%w: tile %s has no usable file", ErrNotFound, base)
	}
	run.flush(ctx)
	return res, nil
}
