package resolve

// Source：解析结果来源
type Source int

const (
	SourceNone Source = iota
	// SourceLocal：本瓦片模型包（或展开目录）直接包含该模型
	SourceLocal
	// SourcePrior：复用较低 LOD 已登记的引用名
	SourcePrior
	// SourceOrphan：认领较低 LOD 的孤儿包成员
	SourceOrphan
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourcePrior:
		return "prior"
	case SourceOrphan:
		return "orphan"
	}
	return "none"
}

// Policy：解析策略
type Policy struct {
	// NoSecondRef：已有更低 LOD 实例时不再输出该要素，避免跨 LOD 重复几何
	// 仅作用于 SourcePrior 分支且只看严格更低的 LOD；孤儿认领不受影响
	NoSecondRef bool
}

// Request：一条矢量记录的解析输入
type Request struct {
	Key string
	LOD int
	// Local：本瓦片是否直接包含该模型；LocalRef 为此时登记的引用名
	Local    bool
	LocalRef string
	// LocalArchive/LocalTexture：本地引用所在的模型包与纹理包，随实例登记
	LocalArchive string
	LocalTexture string
	// GeoTypical：通用模型只看本地文件，不登记也不查表
	GeoTypical bool
}

// Decision：解析结论
// 约束：Valid 为 false 时要素不输出；Prior 仅在 HasPrior 时有意义
type Decision struct {
	Source    Source
	Valid     bool
	Reference string
	Orphan    Orphan
	Prior     Instance
	HasPrior  bool
	// Known：键在任意 LOD 登记过（诊断用）
	Known bool
}

// Resolver：组合两张表执行解析策略
type Resolver struct {
	Instances *Instances
	Orphans   *Orphans
}

func New() *Resolver {
	return &Resolver{Instances: NewInstances(), Orphans: NewOrphans()}
}

// Resolve：按顺序尝试本地、较低 LOD 实例、孤儿
// exists 用于校验孤儿模型包仍在磁盘上，调用时不持有任何表锁
func (r *Resolver) Resolve(req Request, p Policy, exists func(string) bool) Decision {
	if req.GeoTypical {
		if req.Local {
			return Decision{Source: SourceLocal, Valid: true, Reference: req.LocalRef}
		}
		return Decision{}
	}

	if req.Local {
		// 只看严格更低的 LOD，重复解析同一记录时结论不变
		prior, found, known := r.Instances.FindPrior(req.Key, req.LOD-1)
		d := Decision{Source: SourceLocal, Valid: true, Reference: req.LocalRef, Known: known}
		if found {
			d.Prior, d.HasPrior = prior, true
		}
		r.register(req.Key, Instance{LOD: req.LOD, Reference: req.LocalRef, Archive: req.LocalArchive, Texture: req.LocalTexture})
		return d
	}

	prior, found, known := r.Instances.FindPrior(req.Key, req.LOD)

	if found {
		d := Decision{Source: SourcePrior, Reference: prior.Reference, Prior: prior, HasPrior: true, Known: true}
		// 同 LOD 的实例是本层已登记的引用（例如此前认领的孤儿），不算二次引用
		if p.NoSecondRef && prior.LOD < req.LOD {
			return d
		}
		d.Valid = true
		return d
	}

	o, ok := r.Orphans.Claim(req.Key, req.LOD)
	if !ok {
		return Decision{Known: known}
	}
	d := Decision{Source: SourceOrphan, Reference: o.ArchiveName, Orphan: o, Known: known}
	if exists != nil && !exists(o.ModelZip) {
		return d
	}
	d.Valid = true
	r.register(req.Key, Instance{LOD: req.LOD, Reference: o.ArchiveName, Archive: o.ModelZip, Texture: o.TextureZip})
	return d
}

// register：登记实例并移除同 (key, LOD) 的孤儿，两张表不会同时持有同一条目
func (r *Resolver) register(key string, inst Instance) {
	if r.Instances.Add(key, inst) {
		r.Orphans.Remove(key, inst.LOD)
	}
}

// RegisterUnclaimed：瓦片处理完后把包内未被引用且未知的模型登记为孤儿，返回新登记数
func (r *Resolver) RegisterUnclaimed(lod int, modelZip, textureZip string, members map[string]string) int {
	n := 0
	for key, name := range members {
		if r.Instances.Known(key) {
			continue
		}
		if !r.Orphans.Register(key, Orphan{LOD: lod, ModelZip: modelZip, ArchiveName: name, TextureZip: textureZip}) {
			continue
		}
		// 与并发的实例登记交错时撤回
		if r.Instances.Known(key) {
			r.Orphans.Remove(key, lod)
			continue
		}
		n++
	}
	return n
}
