package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"cdb-features/internal/blacklist"
	"cdb-features/internal/capture"
	"cdb-features/internal/cdb/tile"
	"cdb-features/internal/cdb/vector"
	"cdb-features/internal/feature"
	"cdb-features/internal/logger"
	"cdb-features/internal/metrics"
	"cdb-features/internal/resolve"
	"cdb-features/internal/session"

	"github.com/paulmach/orb"
)

const (
	AttrBaseName      = "osge_basename"
	AttrModelName     = "osge_modelname"
	AttrModelZip      = "osge_modelzip"
	AttrTextureZip    = "osge_texturezip"
	AttrModelTexture  = "osge_modeltexture"
	AttrGSUsesGT      = "osge_gs_uses_gt"
	AttrReferenceName = "osge_referencedName"
	// AttrOrigin：要素来源 "<矢量文件基名>#<记录序号>"，重复请求时不变
	AttrOrigin = "osge_origin"
)

// Origin：要素来源标识
func Origin(fileBase string, record int) string {
	return fileBase + "#" + strconv.Itoa(record)
}

// extraction：单次瓦片请求的提取状态
type extraction struct {
	ctx     context.Context
	src     *Source
	sess    *session.Session
	tile    *tile.Tile
	res     *feature.Result
	counter int
	pending []capture.Record
}

// modelFiles：一个 selection 文件对应的模型包与纹理位置
type modelFiles struct {
	archive    bool   // 非展开模式的模型 zip
	modelZip   string // zip 路径或展开目录
	textureZip string // 存在时非空
	textureDir string
	zipDir     string
	header     string
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// existing：路径不存在时返回空串
func existing(p string) string {
	if p == "" || !exists(p) {
		return ""
	}
	return p
}

// prepare：定位模型包；地理专属瓦片缺少必需的模型包或纹理目录时整个文件失败
func (x *extraction) prepare(f tile.File) (modelFiles, error) {
	o := x.src.opts
	var m modelFiles
	if o.GeoTypical {
		return m, nil
	}
	m.zipDir = x.tile.ModelDir(f)
	m.header = x.tile.ModelHeader(f)
	if o.Inflated {
		m.modelZip = x.tile.ModelArchive(f, true)
		m.textureDir = x.tile.TextureArchive(f, true)
		if !exists(m.textureDir) {
			return m, fmt.Errorf("%w: texture directory %s", ErrNotFound, m.textureDir)
		}
		return m, nil
	}
	m.archive = true
	m.modelZip = x.tile.ModelArchive(f, false)
	if !exists(m.modelZip) {
		return m, fmt.Errorf("%w: model archive %s", ErrNotFound, m.modelZip)
	}
	if tz := x.tile.TextureArchive(f, false); exists(tz) {
		m.textureZip = tz
	}
	return m, nil
}

// file：提取一个 selection 文件；返回错误表示文件不可用
func (x *extraction) file(f tile.File) error {
	m, err := x.prepare(f)
	if err != nil {
		return err
	}
	rd, err := x.src.dataset.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer rd.Close()

	for {
		rec, ok := rd.Next()
		if !ok {
			break
		}
		x.record(f, m, rec)
	}
	if err := rd.Err(); err != nil {
		return fmt.Errorf("read %s: %w", f.Path, err)
	}
	if m.archive {
		x.registerOrphans(f, m)
	}
	return nil
}

func (x *extraction) inFilter(g orb.Geometry) bool {
	flt, ok := x.tile.Filter()
	if !ok {
		return true
	}
	if p, isPoint := g.(orb.Point); isPoint {
		return flt.ContainsPoint(p)
	}
	return g.Bound().Intersects(flt.Bound())
}

func drop(reason string) { metrics.FeaturesDroppedTotal.WithLabelValues(reason).Inc() }

// record：解析单条记录并按需输出要素
func (x *extraction) record(f tile.File, m modelFiles, rec *vector.Record) {
	o := x.src.opts
	if rec.Geometry == nil || !x.inFilter(rec.Geometry) {
		return
	}
	modl, ok := rec.Attr("MODL")
	if !ok || modl == "" {
		drop("no_model")
		return
	}
	facc, _ := rec.Attr("FACC")
	fsc, _ := rec.Int("FSC")
	key := tile.ModelKey(facc, fsc, modl)
	lod := f.Address.LOD

	ft := &feature.Feature{
		ID:       x.sess.IDs.Next(),
		Geometry: rec.Geometry,
		Z:        append([]float64(nil), rec.Z...),
		Attrs:    make(map[string]any, len(rec.Attrs)+8),
	}
	for k, v := range rec.Attrs {
		ft.Attrs[k] = v
	}
	zoffset := 0.0
	if _, isPoint := rec.Geometry.(orb.Point); isPoint && o.AbsZInM && len(ft.Z) == 1 && len(rec.M) == 1 {
		zoffset = ft.Z[0]
		ft.Z[0] = rec.M[0] + zoffset
	}
	origin := Origin(f.Base, rec.Index)
	ft.Set(AttrBaseName, key)
	ft.Set(AttrOrigin, origin)
	if o.EditSupport {
		x.editAttrs(ft, f, rec, key, zoffset)
	}
	x.counter++
	if m.archive {
		ft.Set(AttrModelZip, m.modelZip)
	}

	req := resolve.Request{Key: key, LOD: lod, GeoTypical: o.GeoTypical}
	var fullName, archiveName string
	switch {
	case o.GeoTypical:
		fullName = tile.GTModelPath(o.RootDir, facc, fsc, modl)
		req.Local = exists(fullName)
		req.LocalRef = fullName
	case m.archive:
		archiveName = x.tile.ArchiveName(f, key)
		req.Local = x.src.archives.Contains(m.modelZip, false, archiveName)
		req.LocalRef = archiveName
		req.LocalArchive = m.modelZip
		req.LocalTexture = m.textureZip
	default:
		archiveName = x.tile.ArchiveName(f, key)
		fullName = filepath.Join(m.modelZip, archiveName)
		req.Local = x.src.archives.Contains(m.modelZip, true, archiveName)
		req.LocalRef = fullName
	}
	// 通用模型 inst=1 表示二次引用
	if o.GeoTypical && o.NoSecondRef && req.Local {
		if inst, ok := rec.Int("inst"); ok && inst == 1 {
			drop("second_reference")
			return
		}
	}

	d := x.sess.Resolver.Resolve(req, resolve.Policy{NoSecondRef: o.NoSecondRef}, exists)
	if !d.Valid {
		x.invalid(ft, f, key, d)
		return
	}

	switch d.Source {
	case resolve.SourceLocal:
		if m.archive {
			ft.Set(AttrModelName, archiveName)
			x.textureAttrs(ft, m.textureZip, m)
			if d.HasPrior {
				ft.Set(AttrReferenceName, d.Prior.Reference)
			}
		} else {
			ft.Set(AttrModelName, fullName)
			if !o.GeoTypical {
				ft.Set(AttrModelTexture, m.textureDir)
			}
		}
	case resolve.SourcePrior:
		ft.Set(AttrModelName, d.Reference)
		if d.Prior.Archive != "" {
			ft.Set(AttrModelZip, d.Prior.Archive)
			x.textureAttrs(ft, existing(d.Prior.Texture), m)
		}
	case resolve.SourceOrphan:
		metrics.OrphansClaimedTotal.Inc()
		ft.Set(AttrModelZip, d.Orphan.ModelZip)
		ft.Set(AttrModelName, d.Orphan.ArchiveName)
		x.textureAttrs(ft, existing(d.Orphan.TextureZip), m)
	}

	if fb, ok := x.sess.Blacklist.(blacklist.FeatureCache); ok && fb.IsFeatureBlacklisted(x.ctx, origin) {
		drop("feature_blacklisted")
		return
	}
	x.res.Add(ft)
	if x.sess.Origins != nil {
		x.sess.Origins.Record(ft.ID, origin)
	}
	metrics.FeaturesEmittedTotal.WithLabelValues(d.Source.String()).Inc()
	if x.src.sink != nil && !o.GeoTypical {
		x.pending = append(x.pending, capture.FromFeature(x.sess.ID.String(), f.Base, lod, ft))
	}
}

// textureAttrs：地理专属模型使用通用纹理时只给出模型目录
func (x *extraction) textureAttrs(ft *feature.Feature, textureZip string, m modelFiles) {
	if x.src.opts.GSUsesGTTex {
		ft.Set(AttrGSUsesGT, m.zipDir)
		return
	}
	if textureZip != "" {
		ft.Set(AttrTextureZip, textureZip)
	}
}

func (x *extraction) invalid(ft *feature.Feature, f tile.File, key string, d resolve.Decision) {
	switch d.Source {
	case resolve.SourcePrior:
		drop("second_reference")
		logger.L().Debug("cdb_model_second_reference", "model", key, "tile", f.Base, "prior_lod", d.Prior.LOD)
	case resolve.SourceOrphan:
		drop("orphan_invalid")
		logger.L().Info("cdb_model_invalid", "model", key, "tile", f.Base,
			"err", fmt.Errorf("%w: %s", ErrInvalid, d.Orphan.ModelZip))
	default:
		drop("not_found")
		logger.Verbose(x.src.opts.Verbose, "cdb_model_not_found", "model", key, "tile", f.Base, "fid", ft.ID, "known", d.Known)
	}
}

func (x *extraction) editAttrs(ft *feature.Feature, f tile.File, rec *vector.Record, key string, zoffset float64) {
	o := x.src.opts
	ft.Set("name", key)
	ft.Set("transformname", fmt.Sprintf("xform_%s_%05d", f.Base, x.counter))
	if o.GeoTypical {
		ft.Set("modeltype", "geotypical")
		ft.Set("selection", f.Selector)
	} else {
		ft.Set("modeltype", "geospecific")
		ft.Set("selection", f.Index)
	}
	ft.Set("tilename", f.Base)
	for _, k := range []string{"bsr", "bbw", "bbl", "bbh"} {
		v, _ := rec.Float(k)
		ft.Set(k, v)
	}
	ft.Set("zoffset", zoffset)
}

// registerOrphans：本文件处理完后登记包内未被引用的模型
func (x *extraction) registerOrphans(f tile.File, m modelFiles) {
	names, err := x.src.archives.List(m.modelZip, false)
	if err != nil {
		logger.L().Warn("cdb_archive_list_fail", "archive", m.modelZip, "err", err)
		return
	}
	members := map[string]string{}
	for _, n := range names {
		k := tile.KeyFromArchiveName(n, m.header)
		if k == "" {
			continue
		}
		members[k] = n
	}
	n := x.sess.Resolver.RegisterUnclaimed(f.Address.LOD, m.modelZip, m.textureZip, members)
	if n > 0 {
		metrics.OrphansRegisteredTotal.Add(float64(n))
		logger.Verbose(x.src.opts.Verbose, "cdb_orphans_registered", "tile", f.Base, "count", n)
	}
}

// flush：把本次请求的采集记录写出；失败只记日志
func (x *extraction) flush(ctx context.Context) {
	if x.src.sink == nil || len(x.pending) == 0 {
		return
	}
	if err := x.src.sink.Write(ctx, x.pending); err != nil {
		metrics.CaptureFailTotal.WithLabelValues(x.src.sink.Name()).Inc()
		logger.L().Warn("cdb_capture_fail", "sink", x.src.sink.Name(), "count", len(x.pending), "err", err)
	}
	x.pending = nil
}
