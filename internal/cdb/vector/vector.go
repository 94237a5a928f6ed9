// 包 vector：CDB 矢量瓦片读取（shapefile），把原始记录转换为 orb 几何与属性表
package vector

import (
	"errors"
	"strconv"
	"strings"

	"gitee.com/LJ_COOL/go-shp"
	"github.com/paulmach/orb"
)

var ErrUnsupportedShape = errors.New("unsupported shape type")

// Record：一条矢量记录
// Z/M 与几何顶点一一对应；二维几何时为 nil
type Record struct {
	Index    int
	Geometry orb.Geometry
	Z        []float64
	M        []float64
	Attrs    map[string]string
}

// Attr：按字段名读取属性，大小写不敏感
func (r *Record) Attr(name string) (string, bool) {
	if v, ok := r.Attrs[name]; ok {
		return v, true
	}
	for k, v := range r.Attrs {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Int：读取整数属性，兼容 "116.000" 形式
func (r *Record) Int(name string) (int, bool) {
	s, ok := r.Attr(name)
	if !ok || s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// Float：读取浮点属性
func (r *Record) Float(name string) (float64, bool) {
	s, ok := r.Attr(name)
	if !ok || s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Reader：逐条读取记录；Next 返回 false 后由 Err 区分正常读完与读取失败
type Reader interface {
	Next() (*Record, bool)
	Err() error
	Close() error
}

// Dataset：矢量数据集打开器
type Dataset interface {
	Open(path string) (Reader, error)
}

// Shapefile：基于 go-shp 的数据集实现，读取 .shp/.shx/.dbf
type Shapefile struct{}

func (Shapefile) Open(path string) (Reader, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, err
	}
	return &shapeReader{r: r, fields: r.Fields()}, nil
}

type shapeReader struct {
	r      *shp.Reader
	fields []shp.Field
}

func (s *shapeReader) Next() (*Record, bool) {
	for s.r.Next() {
		n, p := s.r.Shape()
		rec, err := convert(p)
		if err != nil {
			// 不支持的几何类型（Null、MultiPatch）跳过
			continue
		}
		rec.Index = n
		rec.Attrs = make(map[string]string, len(s.fields))
		for k, f := range s.fields {
			rec.Attrs[f.String()] = strings.TrimSpace(s.r.ReadAttribute(n, k))
		}
		return rec, true
	}
	return nil, false
}

// Err：底层读取遇到的第一个非 EOF 错误（如 .shp 被截断）
func (s *shapeReader) Err() error { return s.r.Err() }

func (s *shapeReader) Close() error {
	s.r.Close()
	return nil
}

func convert(p shp.Shape) (*Record, error) {
	switch s := p.(type) {
	case *shp.Point:
		return &Record{Geometry: orb.Point{s.X, s.Y}}, nil
	case *shp.PointZ:
		return &Record{Geometry: orb.Point{s.X, s.Y}, Z: []float64{s.Z}, M: []float64{s.M}}, nil
	case *shp.PointM:
		return &Record{Geometry: orb.Point{s.X, s.Y}, M: []float64{s.M}}, nil
	case *shp.MultiPoint:
		return &Record{Geometry: multiPoint(s.Points)}, nil
	case *shp.MultiPointZ:
		return &Record{Geometry: multiPoint(s.Points), Z: s.ZArray, M: s.MArray}, nil
	case *shp.MultiPointM:
		return &Record{Geometry: multiPoint(s.Points), M: s.MArray}, nil
	case *shp.PolyLine:
		return &Record{Geometry: lines(s.Points, s.Parts)}, nil
	case *shp.PolyLineZ:
		return &Record{Geometry: lines(s.Points, s.Parts), Z: s.ZArray, M: s.MArray}, nil
	case *shp.PolyLineM:
		return &Record{Geometry: lines(s.Points, s.Parts), M: s.MArray}, nil
	case *shp.Polygon:
		return &Record{Geometry: polygon(s.Points, s.Parts)}, nil
	case *shp.PolygonZ:
		return &Record{Geometry: polygon(s.Points, s.Parts), Z: s.ZArray, M: s.MArray}, nil
	case *shp.PolygonM:
		return &Record{Geometry: polygon(s.Points, s.Parts), M: s.MArray}, nil
	}
	return nil, ErrUnsupportedShape
}

func multiPoint(pts []shp.Point) orb.MultiPoint {
	out := make(orb.MultiPoint, len(pts))
	for i, p := range pts {
		out[i] = orb.Point{p.X, p.Y}
	}
	return out
}

// splitParts：按 Parts 起始下标切分点序列
func splitParts(pts []shp.Point, parts []int32) [][]orb.Point {
	if len(parts) == 0 {
		parts = []int32{0}
	}
	var out [][]orb.Point
	for i, start := range parts {
		end := int32(len(pts))
		if i < len(parts)-1 {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(pts) {
			continue
		}
		seg := make([]orb.Point, 0, end-start)
		for _, p := range pts[start:end] {
			seg = append(seg, orb.Point{p.X, p.Y})
		}
		out = append(out, seg)
	}
	return out
}

func lines(pts []shp.Point, parts []int32) orb.Geometry {
	segs := splitParts(pts, parts)
	if len(segs) == 1 {
		return orb.LineString(segs[0])
	}
	ml := make(orb.MultiLineString, len(segs))
	for i, s := range segs {
		ml[i] = orb.LineString(s)
	}
	return ml
}

func polygon(pts []shp.Point, parts []int32) orb.Polygon {
	segs := splitParts(pts, parts)
	poly := make(orb.Polygon, len(segs))
	for i, s := range segs {
		poly[i] = orb.Ring(s)
	}
	return poly
}
