// 包 replace：模型替换工作队列与已退役模型表
// 编辑端提交替换批次，渲染端按提交顺序取出执行；被替换的旧模型登记到退役表，防止重复装载。
package replace

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrEmpty = errors.New("replacement queue empty")

// Replacement：一次模型替换
type Replacement struct {
	ModelName     string `json:"model_name"`
	TransformName string `json:"transform_name"`
	NewModel      string `json:"new_model"`
	FID           int64  `json:"fid"`
}

// Batch：同时生效的一组替换
type Batch struct {
	ID       int64         `json:"id"`
	Items    []Replacement `json:"items"`
	Enqueued time.Time     `json:"enqueued"`
}

// Queue：先进先出的替换队列，由编排方持有
type Queue struct {
	mu     sync.Mutex
	items  []Batch
	nextID int64
	signal chan struct{}
}

func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Push：入队并返回批次 ID
func (q *Queue) Push(items []Replacement) int64 {
	q.mu.Lock()
	q.nextID++
	id := q.nextID
	q.items = append(q.items, Batch{ID: id, Items: append([]Replacement(nil), items...), Enqueued: time.Now()})
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return id
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Peek：查看队首但不出队
func (q *Queue) Peek() (Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Batch{}, false
	}
	return q.items[0], true
}

// Pop：出队
func (q *Queue) Pop() (Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Batch{}, false
	}
	b := q.items[0]
	q.items = q.items[1:]
	return b, true
}

// Next：阻塞直到有批次可取或 ctx 结束
func (q *Queue) Next(ctx context.Context) (Batch, error) {
	for {
		if b, ok := q.Pop(); ok {
			return b, nil
		}
		select {
		case <-ctx.Done():
			return Batch{}, ctx.Err()
		case <-q.signal:
		}
	}
}

// Retired：被替换下线的模型
type Retired struct {
	TransformName string    `json:"transform_name"`
	Primitive     uint64    `json:"primitive"`
	At            time.Time `json:"at"`
}

// RetiredMap：模型名到退役记录；同名重复登记保留首条
type RetiredMap struct {
	mu sync.RWMutex
	m  map[string]Retired
}

func NewRetiredMap() *RetiredMap {
	return &RetiredMap{m: make(map[string]Retired)}
}

func (r *RetiredMap) Add(name, transform string, prim uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[name]; ok {
		return false
	}
	r.m[name] = Retired{TransformName: transform, Primitive: prim, At: time.Now()}
	return true
}

func (r *RetiredMap) Get(name string) (Retired, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.m[name]
	return v, ok
}

func (r *RetiredMap) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
