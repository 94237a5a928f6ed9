// 包 resolve：模型实例引用解析
// 维护两张跨瓦片的表：已知实例（模型键 -> 各 LOD 的引用名）与孤儿实例（模型包中存在但未被矢量记录引用的成员）。
// 两张表各自一把锁；查找与认领在同一临界区内完成，文件校验等 I/O 在锁外进行。
package resolve

import (
	"sort"
	"sync"
)

// Instance：已登记的模型实例
type Instance struct {
	LOD       int    `json:"lod"`
	Reference string `json:"reference"`
	// Archive/Texture：引用所在的模型包与纹理包，展开模式或通用模型时为空
	Archive string `json:"archive,omitempty"`
	Texture string `json:"texture,omitempty"`
}

// Orphan：未被引用的模型包成员
type Orphan struct {
	LOD         int    `json:"lod"`
	ModelZip    string `json:"model_zip"`
	ArchiveName string `json:"archive_name"`
	TextureZip  string `json:"texture_zip,omitempty"`
}

// nearestBelow：LOD<=lod 中最大者的下标；没有时返回 -1
func nearestBelow(n int, lodAt func(int) int, lod int) int {
	best := -1
	for i := 0; i < n; i++ {
		l := lodAt(i)
		if l > lod {
			continue
		}
		if best < 0 || l > lodAt(best) {
			best = i
		}
	}
	return best
}

// Instances：已知实例表
type Instances struct {
	mu sync.Mutex
	m  map[string][]Instance
}

func NewInstances() *Instances {
	return &Instances{m: make(map[string][]Instance)}
}

// Register：登记实例；同一 (key, LOD) 已存在时不覆盖，返回 false
func (s *Instances) Register(key string, lod int, ref string) bool {
	return s.Add(key, Instance{LOD: lod, Reference: ref})
}

// Add：同 Register，携带完整实例信息
func (s *Instances) Add(key string, inst Instance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.m[key] {
		if it.LOD == inst.LOD {
			return false
		}
	}
	list := append(s.m[key], inst)
	sort.SliceStable(list, func(i, j int) bool { return list[i].LOD < list[j].LOD })
	s.m[key] = list
	return true
}

// FindPrior：返回 LOD<=lod 中最大的实例；known 表示该键在任意 LOD 登记过
func (s *Instances) FindPrior(key string, lod int) (inst Instance, found, known bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.m[key]
	if !ok {
		return Instance{}, false, false
	}
	i := nearestBelow(len(list), func(i int) int { return list[i].LOD }, lod)
	if i < 0 {
		return Instance{}, false, true
	}
	return list[i], true, true
}

func (s *Instances) Known(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[key]
	return ok
}

// Len：已登记模型键数
func (s *Instances) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Snapshot：只读拷贝，用于诊断输出
func (s *Instances) Snapshot() map[string][]Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]Instance, len(s.m))
	for k, v := range s.m {
		out[k] = append([]Instance(nil), v...)
	}
	return out
}

// Orphans：孤儿实例表
type Orphans struct {
	mu sync.Mutex
	m  map[string][]Orphan
}

func NewOrphans() *Orphans {
	return &Orphans{m: make(map[string][]Orphan)}
}

// Register：登记孤儿；同一 (key, LOD) 已存在时忽略
func (s *Orphans) Register(key string, o Orphan) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.m[key] {
		if it.LOD == o.LOD {
			return false
		}
	}
	list := append(s.m[key], o)
	sort.SliceStable(list, func(i, j int) bool { return list[i].LOD < list[j].LOD })
	s.m[key] = list
	return true
}

// Claim：认领 LOD<=lod 中最大的孤儿并从表中移除；列表清空时删除该键
// 约束：同一条目只能被认领一次
func (s *Orphans) Claim(key string, lod int) (Orphan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.m[key]
	if !ok {
		return Orphan{}, false
	}
	i := nearestBelow(len(list), func(i int) int { return list[i].LOD }, lod)
	if i < 0 {
		return Orphan{}, false
	}
	o := list[i]
	list = append(list[:i:i], list[i+1:]...)
	if len(list) == 0 {
		delete(s.m, key)
	} else {
		s.m[key] = list
	}
	return o, true
}

// Remove：删除 (key, LOD) 处的孤儿；不存在时返回 false
func (s *Orphans) Remove(key string, lod int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.m[key]
	for i, it := range list {
		if it.LOD != lod {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(s.m, key)
		} else {
			s.m[key] = list
		}
		return true
	}
	return false
}

func (s *Orphans) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.m {
		n += len(v)
	}
	return n
}

func (s *Orphans) Snapshot() map[string][]Orphan {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]Orphan, len(s.m))
	for k, v := range s.m {
		out[k] = append([]Orphan(nil), v...)
	}
	return out
}
