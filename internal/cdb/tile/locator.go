package tile

import (
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Kind：要素瓦片类型
type Kind int

const (
	GeoSpecific Kind = iota
	GeoTypical
)

func (k Kind) String() string {
	if k == GeoTypical {
		return "geotypical"
	}
	return "geospecific"
}

func (k Kind) dataset() Dataset {
	if k == GeoTypical {
		return GTFeature
	}
	return GSFeature
}

// selectors：GS 仅 S001；GT 为 S001（人造物）与 S002（树木）
func (k Kind) selectors() []int {
	if k == GeoTypical {
		return []int{1, 2}
	}
	return []int{1}
}

// File：瓦片内一个候选矢量文件（一个 selection）
type File struct {
	Address  Address
	Selector int
	Index    int
	Base     string
	Path     string
}

// Tile：定位结果
// 约束：Subtile 为 true 时 Request 作为空间过滤范围，Actual 为扩展后的 CDB 瓦片范围
type Tile struct {
	Kind    Kind
	Root    string
	Request Extent
	Address Address
	Actual  Extent
	Subtile bool
	files   []File
}

func (t *Tile) LOD() int { return t.Address.LOD }

// Count：候选矢量文件数
func (t *Tile) Count() int { return len(t.files) }

func (t *Tile) File(i int) File { return t.files[i] }

func (t *Tile) Files() []File { return append([]File(nil), t.files...) }

// Realsel：selection 序号到实际选择子编号
func (t *Tile) Realsel(i int) int { return t.files[i].Selector }

// Filter：子瓦片的空间过滤范围
func (t *Tile) Filter() (Extent, bool) {
	if !t.Subtile {
		return Extent{}, false
	}
	return t.Request, true
}

// ModelArchive：GS 模型几何包路径；inflated 为 true 时返回展开目录
func (t *Tile) ModelArchive(f File, inflated bool) string {
	if inflated {
		return f.Address.Path(t.Root, GSModelGeometry, 1, 1, "")
	}
	return f.Address.Path(t.Root, GSModelGeometry, 1, 1, "zip")
}

// TextureArchive：GS 模型纹理包路径；inflated 为 true 时返回展开目录
func (t *Tile) TextureArchive(f File, inflated bool) string {
	if inflated {
		return f.Address.Path(t.Root, GSModelTexture, 1, 1, "")
	}
	return f.Address.Path(t.Root, GSModelTexture, 1, 1, "zip")
}

// ModelDir：模型几何包所在目录
func (t *Tile) ModelDir(f File) string {
	return f.Address.Dir(t.Root, GSModelGeometry)
}

// ModelHeader：模型包成员名前缀（几何基名加下划线）
func (t *Tile) ModelHeader(f File) string {
	return f.Address.Base(GSModelGeometry, 1, 1) + "_"
}

// ArchiveName：模型在本瓦片几何包中的成员名
func (t *Tile) ArchiveName(f File, key string) string {
	return t.ModelHeader(f) + key + ".flt"
}

// KeyFromArchiveName：由包成员名还原模型键名；前缀不符或非 .flt 时返回空串
func KeyFromArchiveName(name, header string) string {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, header) {
		return ""
	}
	ext := filepath.Ext(base)
	if !strings.EqualFold(ext, ".flt") {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(base, header), ext)
}

// Locator：把请求范围映射到 CDB 瓦片
type Locator struct {
	Root string
	Kind Kind
	// FullStackLOD0：LOD0 请求同时装载同一地理单元的 LC 层文件
	FullStackLOD0 bool
}

// Locate：计算瓦片地址与候选文件，不访问磁盘
// 返回 false 表示范围无法映射到单个 CDB 瓦片（跨地理单元或高于一个地理单元）
func (l *Locator) Locate(e Extent) (*Tile, bool) {
	h := e.Height()
	if h <= 0 || e.Width() <= 0 || h > 1+eps {
		return nil, false
	}
	lod := int(math.Round(-math.Log2(h)))
	if lod < 0 {
		lod = 0
	}
	if lod > MaxLOD {
		return nil, false
	}
	cell := CellFor(e.South, e.West)
	ce := cell.Extent()
	if e.South < ce.South-eps || e.North > ce.North+eps || e.West < ce.West-eps || e.East > ce.East+eps {
		return nil, false
	}
	n := 1 << uint(lod)
	tileH := 1.0 / float64(n)
	tileW := float64(cell.LonStep) / float64(n)
	u := int(math.Floor((e.South-ce.South)/tileH + eps))
	r := int(math.Floor((e.West-ce.West)/tileW + eps))
	if u >= n {
		u = n - 1
	}
	if r >= n {
		r = n - 1
	}
	addr := Address{Cell: cell, LOD: lod, U: u, R: r}
	return l.build(addr, e, cell.LonStep != 1 || !addr.Extent().Equal(e)), true
}

// LocateLOD：按点与指定 LOD 直接寻址（LOD 可为负，对应 LC 层），用于批量扫描
func (l *Locator) LocateLOD(lat, lon float64, lod int) (*Tile, bool) {
	if lod < MinLOD || lod > MaxLOD || lat < -90 || lat >= 90 || lon < -180 || lon >= 180 {
		return nil, false
	}
	cell := CellFor(lat, lon)
	addr := Address{Cell: cell, LOD: lod}
	if lod > 0 {
		ce := cell.Extent()
		n := 1 << uint(lod)
		addr.U = int(math.Floor((lat - ce.South) * float64(n)))
		addr.R = int(math.Floor((lon - ce.West) * float64(n) / float64(cell.LonStep)))
	}
	return l.build(addr, addr.Extent(), false), true
}

func (l *Locator) build(addr Address, req Extent, subtile bool) *Tile {
	t := &Tile{
		Kind:    l.Kind,
		Root:    l.Root,
		Request: req,
		Address: addr,
		Actual:  addr.Extent(),
		Subtile: subtile,
	}
	var addrs []Address
	if addr.LOD == 0 && l.FullStackLOD0 {
		for c := MinLOD; c < 0; c++ {
			addrs = append(addrs, addr.Coarser(c))
		}
	}
	addrs = append(addrs, addr)
	ds := l.Kind.dataset()
	for _, a := range addrs {
		for _, sel := range l.Kind.selectors() {
			t.files = append(t.files, File{
				Address:  a,
				Selector: sel,
				Index:    len(t.files),
				Base:     a.Base(ds, sel, 1),
				Path:     a.Path(l.Root, ds, sel, 1, "shp"),
			})
		}
	}
	return t
}

// LocateOnDisk：Locate 后仅保留磁盘上存在的候选文件；一个都没有时返回 false
func (l *Locator) LocateOnDisk(e Extent) (*Tile, bool) {
	t, ok := l.Locate(e)
	if !ok {
		return nil, false
	}
	var kept []File
	for _, f := range t.files {
		if _, err := os.Stat(f.Path); err == nil {
			f.Index = len(kept)
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return nil, false
	}
	t.files = kept
	return t, true
}
