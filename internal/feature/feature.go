// 包 feature：输出要素、全局 FID 分配与结果侧表
package feature

import (
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature：一条输出要素
// Z 与几何顶点对应；Attrs 中 osge_* 键供渲染层定位模型
type Feature struct {
	ID       int64
	Geometry orb.Geometry
	Z        []float64
	Attrs    map[string]any
}

func (f *Feature) Set(k string, v any) {
	if f.Attrs == nil {
		f.Attrs = make(map[string]any)
	}
	f.Attrs[k] = v
}

func (f *Feature) String(k string) string {
	if s, ok := f.Attrs[k].(string); ok {
		return s
	}
	return ""
}

// GeoJSON：转换为 GeoJSON 要素，Z 值写入 properties.z
func (f *Feature) GeoJSON() *geojson.Feature {
	g := geojson.NewFeature(f.Geometry)
	g.ID = f.ID
	for k, v := range f.Attrs {
		g.Properties[k] = v
	}
	if len(f.Z) == 1 {
		g.Properties["z"] = f.Z[0]
	} else if len(f.Z) > 1 {
		g.Properties["z"] = f.Z
	}
	return g
}

// IDAllocator：进程内单调递增的要素 ID，不复用
type IDAllocator struct {
	n atomic.Int64
}

func (a *IDAllocator) Next() int64 { return a.n.Add(1) - 1 }

// Peek：下一个将分配的 ID
func (a *IDAllocator) Peek() int64 { return a.n.Load() }

// OriginIndex：FID 到要素来源的有界索引，超出容量时淘汰最早登记的条目
// 来源在重复请求间保持不变，FID 不会；要素黑名单据此把客户端给出的 FID 换成来源
type OriginIndex struct {
	mu    sync.Mutex
	cap   int
	m     map[int64]string
	order []int64
}

func NewOriginIndex(capacity int) *OriginIndex {
	if capacity <= 0 {
		capacity = 1
	}
	return &OriginIndex{cap: capacity, m: make(map[int64]string)}
}

func (o *OriginIndex) Record(fid int64, origin string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.m[fid]; !ok {
		o.order = append(o.order, fid)
	}
	o.m[fid] = origin
	for len(o.order) > o.cap {
		delete(o.m, o.order[0])
		o.order = o.order[1:]
	}
}

func (o *OriginIndex) Origin(fid int64) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.m[fid]
	return s, ok
}

// Result：一次请求的输出与 FID 索引
// Tile 为瓦片基名，FilesChecked 为实际读取的矢量文件数
type Result struct {
	Features     []*Feature
	Tile         string
	LOD          int
	FilesChecked int
	byID         map[int64]*Feature
}

func NewResult() *Result {
	return &Result{byID: make(map[int64]*Feature)}
}

func (r *Result) Add(f *Feature) {
	r.Features = append(r.Features, f)
	r.byID[f.ID] = f
}

func (r *Result) Len() int { return len(r.Features) }

// Lookup：按 FID 取要素
func (r *Result) Lookup(fid int64) (*Feature, bool) {
	f, ok := r.byID[fid]
	return f, ok
}

// Collection：整体转换为 GeoJSON FeatureCollection
func (r *Result) Collection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range r.Features {
		fc.Append(f.GeoJSON())
	}
	return fc
}

// DrawIndex：渲染图元 ID 到要素 ID 的侧表
// 渲染层为每个图元登记来源要素，拾取与高亮时据此反查，不依赖图元自身携带标记
type DrawIndex struct {
	mu   sync.RWMutex
	prim map[uint64]int64
}

func NewDrawIndex() *DrawIndex {
	return &DrawIndex{prim: make(map[uint64]int64)}
}

// Tag：登记图元来源；同一图元重复登记以最后一次为准
func (d *DrawIndex) Tag(prim uint64, fid int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prim[prim] = fid
}

func (d *DrawIndex) FID(prim uint64) (int64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fid, ok := d.prim[prim]
	return fid, ok
}

// DrawSet：某要素对应的全部图元
func (d *DrawIndex) DrawSet(fid int64) []uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []uint64
	for p, f := range d.prim {
		if f == fid {
			out = append(out, p)
		}
	}
	return out
}

// Reindex：图元被替换（如模型更换）后迁移登记
func (d *DrawIndex) Reindex(oldPrim, newPrim uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	fid, ok := d.prim[oldPrim]
	if !ok {
		return false
	}
	delete(d.prim, oldPrim)
	d.prim[newPrim] = fid
	return true
}

func (d *DrawIndex) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.prim)
}
