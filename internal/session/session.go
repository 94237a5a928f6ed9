// 包 session：解析会话，持有跨瓦片共享的实例表、孤儿表与黑名单
package session

import (
	"sync/atomic"
	"time"

	"cdb-features/internal/blacklist"
	"cdb-features/internal/feature"
	"cdb-features/internal/resolve"

	"github.com/google/uuid"
)

// Session：一次地图渲染会话的解析状态
// 约束：同一会话内各瓦片请求共享 Resolver 与 Blacklist；IDs 可跨会话共享以保证 FID 不复用
type Session struct {
	ID        uuid.UUID
	Started   time.Time
	Resolver  *resolve.Resolver
	Blacklist blacklist.Cache
	IDs       *feature.IDAllocator
	// Origins：FID 到要素来源，供按 FID 屏蔽要素
	Origins *feature.OriginIndex
}

const originCapacity = 1 << 16

// New：创建会话；bl 为空时使用进程内黑名单，ids 为空时新建分配器
func New(bl blacklist.Cache, ids *feature.IDAllocator) *Session {
	if bl == nil {
		bl = blacklist.NewMemory()
	}
	if ids == nil {
		ids = &feature.IDAllocator{}
	}
	return &Session{
		ID:        uuid.New(),
		Started:   time.Now(),
		Resolver:  resolve.New(),
		Blacklist: bl,
		IDs:       ids,
		Origins:   feature.NewOriginIndex(originCapacity),
	}
}

// Stats：会话诊断信息
type Stats struct {
	ID            string    `json:"id"`
	Started       time.Time `json:"started"`
	Instances     int       `json:"instances"`
	Orphans       int       `json:"orphans"`
	Blacklisted   int       `json:"blacklisted"`
	NextFeatureID int64     `json:"next_feature_id"`
}

func (s *Session) Stats(blacklisted int) Stats {
	return Stats{
		ID:            s.ID.String(),
		Started:       s.Started,
		Instances:     s.Resolver.Instances.Len(),
		Orphans:       s.Resolver.Orphans.Len(),
		Blacklisted:   blacklisted,
		NextFeatureID: s.IDs.Peek(),
	}
}

// Holder：当前会话的原子切换容器
// 背景：服务运行中重置会话时，进行中的请求继续使用旧会话，后续请求立即取到新会话
type Holder struct {
	v atomic.Value
}

func NewHolder(s *Session) *Holder {
	h := &Holder{}
	h.v.Store(s)
	return h
}

func (h *Holder) Current() *Session {
	x := h.v.Load()
	if x == nil {
		return nil
	}
	return x.(*Session)
}

// Reset：以新会话替换当前会话，沿用 FID 分配器与来源索引；返回旧会话
// bl 为空时沿用旧会话的黑名单
func (h *Holder) Reset(bl blacklist.Cache) *Session {
	old := h.Current()
	var ids *feature.IDAllocator
	if old != nil {
		ids = old.IDs
		if bl == nil {
			bl = old.Blacklist
		}
	}
	s := New(bl, ids)
	if old != nil {
		s.Origins = old.Origins
	}
	h.v.Store(s)
	return old
}
