// 包 archive：模型几何包成员枚举（zip 或展开目录），带 TTL 的 LRU 缓存
package archive

import (
	"container/list"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/mholt/archiver/v3"
)

// 文档注释：模型包成员名缓存
// 背景：同一瓦片的几何包在每条记录解析与孤儿登记时都会被查询，重复解压目录代价高。
// 约束：键为包路径；值为排序后的成员基名；过期后重新枚举。
type Lister struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[string]*list.Element
}

type kv struct {
	k   string
	v   []string
	exp time.Time
}

func NewLister(capacity int, ttl time.Duration) *Lister {
	if capacity <= 0 {
		capacity = 256
	}
	return &Lister{cap: capacity, ttl: ttl, lst: list.New(), dict: make(map[string]*list.Element)}
}

func (c *Lister) get(k string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		it := e.Value.(kv)
		if c.ttl <= 0 || time.Now().Before(it.exp) {
			c.lst.MoveToFront(e)
			return it.v, true
		}
		c.lst.Remove(e)
		delete(c.dict, k)
	}
	return nil, false
}

func (c *Lister) set(k string, v []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		e.Value = kv{k: k, v: v, exp: time.Now().Add(c.ttl)}
		c.lst.MoveToFront(e)
		return
	}
	e := c.lst.PushFront(kv{k: k, v: v, exp: time.Now().Add(c.ttl)})
	c.dict[k] = e
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		if back != nil {
			it := back.Value.(kv)
			delete(c.dict, it.k)
			c.lst.Remove(back)
		}
	}
}

// List：返回包内成员基名；inflated 为 true 时 path 视为目录
// 包不存在时返回 os.ErrNotExist 包装错误；不缓存失败结果
func (c *Lister) List(path string, inflated bool) ([]string, error) {
	if v, ok := c.get(path); ok {
		return v, nil
	}
	var names []string
	var err error
	if inflated {
		names, err = listDir(path)
	} else {
		names, err = listZip(path)
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	c.set(path, names)
	return names, nil
}

// Contains：包内是否存在指定成员
func (c *Lister) Contains(path string, inflated bool, name string) bool {
	names, err := c.List(path, inflated)
	if err != nil {
		return false
	}
	i := sort.SearchStrings(names, name)
	return i < len(names) && names[i] == name
}

func listDir(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read archive dir %s: %w", dir, err)
	}
	out := make([]string, 0, len(ents))
	for _, e := range ents {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func listZip(path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat archive %s: %w", path, err)
	}
	var out []string
	err := archiver.NewZip().Walk(path, func(f archiver.File) error {
		if !f.IsDir() {
			out = append(out, f.Name())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk archive %s: %w", path, err)
	}
	return out, nil
}
